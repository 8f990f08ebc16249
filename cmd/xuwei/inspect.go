package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peter-zx/xuwei-data/internal/matcher"
	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/workbook"
)

func newInspectCmd(opts *globalOptions) *cobra.Command {
	var (
		sheet     string
		headerRow int
		rows      int
	)

	cmd := &cobra.Command{
		Use:   "inspect [workbook.xlsx]",
		Short: "查看工作簿的 Sheet、前几行数据与推荐映射",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := opts.load()
			if err != nil {
				return err
			}
			wb, err := workbook.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer wb.Close()

			return inspect(cmd.OutOrStdout(), wb, newMatcher(cfg), sheet, headerRow-1, rows)
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "只查看指定 Sheet")
	cmd.Flags().IntVar(&headerRow, "header", 1, "表头所在行，从 1 开始")
	cmd.Flags().IntVar(&rows, "rows", workbook.DefaultPreviewRows, "预览行数")
	return cmd
}

func inspect(out io.Writer, wb *workbook.Workbook, m *matcher.Matcher, only string, headerRow, rows int) error {
	sheets, err := wb.Sheets()
	if err != nil {
		return err
	}
	for _, s := range sheets {
		if only != "" && s.Name != only {
			continue
		}
		fmt.Fprintf(out, "== %s (%d 行 × %d 列)\n", s.Name, s.Rows, s.Columns)

		preview, err := wb.Preview(s.Name, rows)
		if err != nil {
			return err
		}
		for i, row := range preview {
			fmt.Fprintf(out, "%3d | %s\n", i+1, strings.Join(row, " | "))
		}

		cols, err := wb.Columns(s.Name, headerRow)
		if err != nil {
			fmt.Fprintf(out, "  表头: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "  表头 (第 %d 行): %s\n", headerRow+1, strings.Join(cols, ", "))
		suggested := m.Suggest(s.Name, cols)
		for _, field := range model.StandardFields() {
			if col, ok := suggested[field]; ok {
				fmt.Fprintf(out, "  %s ← %s\n", field, col)
			}
		}
	}
	return nil
}

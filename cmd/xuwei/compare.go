package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/client"
	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/config"
	"github.com/peter-zx/xuwei-data/internal/export"
	"github.com/peter-zx/xuwei-data/internal/mappingcache"
	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/service"
	"github.com/peter-zx/xuwei-data/internal/workflow"
)

type compareOptions struct {
	fields        []string
	headers       []string
	edits         []string
	mode          string
	filter        string
	outDir        string
	label         string
	identity      string
	remote        bool
	serverURL     string
	remoteCompare bool
	noCache       bool
	forget        bool
}

func newCompareCmd(opts *globalOptions) *cobra.Command {
	var o compareOptions

	cmd := &cobra.Command{
		Use:   "compare [workbook.xlsx]",
		Short: "映射、抽取并对比工作簿中的各 Sheet，导出结果",
		Long: `按映射从每个 Sheet 抽取人员记录，按 姓名+残疾证号 合并后导出。

未指定的字段使用缓存的映射或自动推荐的映射。

Example:
  xuwei compare 名单.xlsx --header 名单A=2 --map 名单B:残疾证号=C --mode detailed --filter diff
  xuwei compare 名单.xlsx --remote --server http://192.168.1.10:8080 --mode xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, dir, err := opts.load()
			if err != nil {
				return err
			}
			return runCompare(cmd.Context(), cfg, dir, args[0], o, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVar(&o.fields, "map", nil, "字段映射 sheet:字段=列 (可重复)")
	cmd.Flags().StringArrayVar(&o.headers, "header", nil, "表头行 sheet=行号，行号从 1 开始 (可重复)")
	cmd.Flags().StringArrayVar(&o.edits, "edit", nil, "导出前修改 人员标识,sheet,字段=新值 (可重复)")
	cmd.Flags().StringVar(&o.mode, "mode", "simple", "导出格式 simple|detailed|xlsx")
	cmd.Flags().StringVar(&o.filter, "filter", "all", "导出范围 all|same|diff")
	cmd.Flags().StringVar(&o.outDir, "out", ".", "导出目录")
	cmd.Flags().StringVar(&o.label, "label", "", "导出文件名前缀 (默认取配置)")
	cmd.Flags().StringVar(&o.identity, "identity", "", "人员标识口径 certificate_no|legacy (默认取配置)")
	cmd.Flags().BoolVar(&o.remote, "remote", false, "通过 HTTP 服务抽取")
	cmd.Flags().StringVar(&o.serverURL, "server", "", "服务地址 (默认取配置)")
	cmd.Flags().BoolVar(&o.remoteCompare, "remote-compare", false, "远端模式下由服务端计算对比结果")
	cmd.Flags().BoolVar(&o.noCache, "no-cache", false, "不读取也不保存映射缓存")
	cmd.Flags().BoolVar(&o.forget, "forget", false, "开始前删除该文件的映射缓存")
	return cmd
}

func runCompare(ctx context.Context, cfg *config.AppConfig, baseDir, path string, o compareOptions, out io.Writer) error {
	logger := newLogger(cfg.Log.Level)

	mode, ok := export.ParseMode(o.mode)
	if !ok {
		return apperr.Validation("未知的导出格式: %s", o.mode)
	}
	filter, err := compare.ParseFilter(o.filter)
	if err != nil {
		return err
	}
	if o.identity != "" {
		cfg.Compare.Identity = o.identity
	}
	identity, ok := model.ParseIdentity(cfg.Compare.Identity)
	if !ok {
		return apperr.Validation("未知的人员标识口径: %s", cfg.Compare.Identity)
	}
	label := o.label
	if label == "" {
		label = cfg.Export.Label
	}

	var (
		backend workflow.Backend
		cache   workflow.MappingCache
	)
	if o.remote {
		url := o.serverURL
		if url == "" {
			url = cfg.Client.ServerURL
		}
		c := client.New(url, client.WithTimeout(cfg.ClientTimeout()), client.WithLogger(logger))
		backend, cache = c, c
	} else {
		svc := service.New(serviceOptions(cfg, logger)...)
		defer svc.Close()
		backend = svc

		dataDir, err := config.EnsureDataDir(cfg, baseDir)
		if err != nil {
			return fmt.Errorf("创建数据目录失败: %w", err)
		}
		cache = mappingcache.New(filepath.Join(dataDir, mappingcache.DefaultFilename))
	}

	ctrlOpts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithIdentity(identity),
		workflow.WithExportLabel(label),
		workflow.WithRemoteCompare(o.remote && o.remoteCompare),
	}
	if !o.noCache {
		ctrlOpts = append(ctrlOpts, workflow.WithMappingCache(cache))
	}
	ctrl := workflow.New(backend, ctrlOpts...)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}
	info, err := ctrl.Upload(ctx, filepath.Base(path), f)
	f.Close()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "文件: %s (%d 个 Sheet)\n", info.Filename, info.SheetCount)

	if o.forget {
		if err := ctrl.ForgetMapping(ctx); err != nil {
			return fmt.Errorf("删除映射缓存失败: %w", err)
		}
	}

	for _, h := range o.headers {
		sheet, row, err := parseHeaderFlag(h)
		if err != nil {
			return err
		}
		if err := ctrl.SetHeaderRow(sheet, row); err != nil {
			return err
		}
	}
	if err := ctrl.LoadColumns(ctx); err != nil {
		return err
	}
	for _, m := range o.fields {
		ff, err := parseFieldFlag(m)
		if err != nil {
			return err
		}
		if err := ctrl.SetField(ff.sheet, ff.field, ff.column); err != nil {
			return err
		}
	}
	printMappings(out, info.SheetNames(), ctrl.State().Mappings)

	results, err := ctrl.Analyze(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(out, "  %s: %d 条记录\n", r.Name, r.RecordCount)
		} else {
			fmt.Fprintf(out, "  %s: 失败 (%s)\n", r.Name, r.Error)
		}
	}

	result, err := ctrl.Compare(ctx)
	switch {
	case err == nil:
		s := result.Stats
		fmt.Fprintf(out, "对比: 共 %d 人，各 Sheet 均有 %d 人，缺失 %d 人，字段不一致 %d 人，平均完整度 %.1f\n",
			s.Total, s.CompleteCount, s.IncompleteCount, s.WithDiffCount, s.AvgCompleteness)
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "  注意: %s 中 %s 出现在第 %v 行，已取最后一行\n", w.Sheet, w.Key, w.Rows)
		}
	case apperr.HasCode(err, apperr.CodeInsufficientSheets) && mode == export.ModeXLSX:
		fmt.Fprintf(out, "跳过对比: %v\n", err)
	default:
		return err
	}

	for _, e := range o.edits {
		ef, err := parseEditFlag(e)
		if err != nil {
			return err
		}
		if err := ctrl.Edit(ef.key, ef.sheet, ef.field, ef.value); err != nil {
			return err
		}
	}
	if err := ctrl.SetFilter(filter); err != nil {
		return err
	}

	file, err := ctrl.Export(mode)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.outDir, 0755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}
	dst := filepath.Join(o.outDir, file.Name)
	if err := os.WriteFile(dst, file.Data, 0644); err != nil {
		return fmt.Errorf("写入导出文件失败: %w", err)
	}
	fmt.Fprintf(out, "已导出 %d 人: %s\n", len(ctrl.Visible()), dst)
	return nil
}

func printMappings(out io.Writer, sheets []string, mappings model.MappingConfig) {
	fmt.Fprintln(out, "映射:")
	for _, sheet := range sheets {
		sm := mappings[sheet]
		fmt.Fprintf(out, "  %s (表头第 %d 行)\n", sheet, sm.HeaderRow+1)
		for _, field := range model.StandardFields() {
			if col, ok := sm.Fields[field]; ok {
				fmt.Fprintf(out, "    %s ← %s\n", field, col)
			}
		}
	}
}

package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/model"
)

// CompareSheetName 汇总对比结果所在的 sheet
const CompareSheetName = "对比结果"

const maxSheetNameLen = 31

var sheetNameReplacer = strings.NewReplacer(
	":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_",
)

// Workbook 生成 xlsx：每个成功抽取的 Sheet 一页（序号 + 字段），
// 有对比结果时追加“对比结果”页（与明细 CSV 相同的列）。
func Workbook(result *compare.Result, groups []*compare.Group, sheets []model.SheetResult, fields []string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	used := make(map[string]bool)
	first := true
	addSheet := func(name string) (string, error) {
		name = uniqueSheetName(name, used)
		if first {
			first = false
			return name, f.SetSheetName("Sheet1", name)
		}
		_, err := f.NewSheet(name)
		return name, err
	}

	for _, s := range sheets {
		if !s.Success {
			continue
		}
		name, err := addSheet(s.Name)
		if err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", s.Name, err)
		}
		rows := make([][]string, 0, len(s.Records)+1)
		rows = append(rows, append([]string{seqLabel}, fields...))
		for i, rec := range s.Records {
			row := make([]string, 0, len(fields)+1)
			row = append(row, fmt.Sprint(i+1))
			for _, field := range fields {
				row = append(row, rec.Get(field))
			}
			rows = append(rows, row)
		}
		if err := writeRows(f, name, rows, headerStyle); err != nil {
			return nil, err
		}
	}

	if result != nil {
		name, err := addSheet(CompareSheetName)
		if err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", CompareSheetName, err)
		}
		rows := make([][]string, 0, len(groups)+1)
		rows = append(rows, DetailedHeader(result.SheetNames, fields))
		for i, g := range groups {
			rows = append(rows, DetailedRow(i+1, g, result.SheetNames, fields))
		}
		if err := writeRows(f, name, rows, headerStyle); err != nil {
			return nil, err
		}
	}

	if first {
		// 没有任何数据时仍输出一个带表头的空页
		if err := f.SetSheetName("Sheet1", CompareSheetName); err != nil {
			return nil, err
		}
		if err := writeRows(f, CompareSheetName, [][]string{append([]string{seqLabel}, fields...)}, headerStyle); err != nil {
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]string, headerStyle int) error {
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, r+1, err)
		}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, headerStyle)
}

// uniqueSheetName 处理 Excel 对 sheet 名的限制（非法字符、31 字符上限、不区分大小写重名）
func uniqueSheetName(name string, used map[string]bool) string {
	name = sheetNameReplacer.Replace(strings.TrimSpace(name))
	if name == "" {
		name = "Sheet"
	}
	name = truncateRunes(name, maxSheetNameLen)

	candidate := name
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf("(%d)", i)
		candidate = truncateRunes(name, maxSheetNameLen-len([]rune(suffix))) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

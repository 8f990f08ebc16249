// Package testutil 提供测试用的内存 Excel 工作簿。
package testutil

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// Sheet 测试工作表：Rows 从第 1 行开始写入
type Sheet struct {
	Name string
	Rows [][]any
}

// XLSX 按顺序生成包含给定工作表的 xlsx 内容
func XLSX(t testing.TB, sheets ...Sheet) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			t.Fatalf("new sheet %s: %v", s.Name, err)
		}
		for r, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetSheetRow(s.Name, cell, &row); err != nil {
				t.Fatalf("write row %d of %s: %v", r+1, s.Name, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

// PersonSheets 两个 Sheet 的常用样例：张三两边都有，李四、王五各在一边
func PersonSheets() []Sheet {
	return []Sheet{
		{
			Name: "名单A",
			Rows: [][]any{
				{"2026年人员名单"},
				{"姓名", "联系电话", "残疾证号", "备注"},
				{"张三", "13800000000", "X1", ""},
				{"李四", "", "X2", "新增"},
				{"", "", "", ""},
			},
		},
		{
			Name: "名单B",
			Rows: [][]any{
				{"姓名", "电话", "残疾证号"},
				{"张三", "13800000000", "X1"},
				{"王五", "13900000000", "X3"},
			},
		},
	}
}

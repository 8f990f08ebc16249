package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/model"
)

func fixture(t *testing.T) ([]model.SheetResult, *compare.Result) {
	t.Helper()
	sheets := []model.SheetResult{
		{Name: "A", Success: true, Records: []model.Record{
			{Row: 2, Values: map[string]string{model.FieldName: "张三", model.FieldDisabilityNo: "X1", model.FieldPhone: "1,2"}},
			{Row: 3, Values: map[string]string{model.FieldName: "李四", model.FieldDisabilityNo: "X2"}},
		}},
		{Name: "B", Success: true, Records: []model.Record{
			{Row: 2, Values: map[string]string{model.FieldName: "张三", model.FieldDisabilityNo: "X1", model.FieldPhone: "3"}},
		}},
		{Name: "C", Success: false, Error: "列不存在"},
	}
	result, err := compare.Compare(sheets)
	require.NoError(t, err)
	return sheets, result
}

func TestSimpleExport(t *testing.T) {
	t.Parallel()

	_, result := fixture(t)
	fields := []string{model.FieldName, model.FieldPhone, model.FieldDisabilityNo}
	out := SimpleExport(result.Groups, result.SheetNames, fields)

	require.True(t, bytes.HasPrefix(out, utf8BOM))
	lines := strings.Split(strings.TrimSuffix(string(out[len(utf8BOM):]), "\n"), "\n")
	assert.Equal(t, []string{
		"序号,姓名,电话,残疾证号",
		"1,张三,1,2,X1", // 简单导出不转义逗号
		"2,李四,,X2",
	}, lines)
}

func TestDetailedExport(t *testing.T) {
	t.Parallel()

	_, result := fixture(t)
	fields := []string{model.FieldName, model.FieldPhone}
	out, err := DetailedExport(result.Groups, result.SheetNames, fields)
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(out, utf8BOM))
	rows, err := csv.NewReader(bytes.NewReader(out[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"序号", "人员标识", "状态", "完整度", "差异字段", "A-姓名", "A-电话", "B-姓名", "B-电话"}, rows[0])
	assert.Equal(t, []string{"1", "张三_X1", "完整", "2/2", "电话", "张三", "1,2", "张三", "3"}, rows[1])
	assert.Equal(t, []string{"2", "李四_X2", "缺失", "1/2", "", "李四", "", "", ""}, rows[2])
	assert.Contains(t, string(out), `"1,2"`)
}

func TestDetailedExport_QuotesAwkwardValues(t *testing.T) {
	t.Parallel()

	sheets := []model.SheetResult{
		{Name: "A", Success: true, Records: []model.Record{
			{Row: 2, Values: map[string]string{model.FieldName: "张三", model.FieldDisabilityNo: "X1", model.FieldPhone: "含\"引号\"\n换行"}},
		}},
		{Name: "B", Success: true, Records: []model.Record{
			{Row: 2, Values: map[string]string{model.FieldName: "张三", model.FieldDisabilityNo: "X1"}},
		}},
	}
	result, err := compare.Compare(sheets)
	require.NoError(t, err)

	out, err := DetailedExport(result.Groups, result.SheetNames, []string{model.FieldPhone})
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(out[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "含\"引号\"\n换行", rows[1][5])
}

func TestFilename(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 5, 9, 7, 1, 0, time.Local)
	assert.Equal(t, "数据整理结果_20260305_090701.xlsx", Filename("数据整理结果", "xlsx", now))
	assert.Equal(t, "csv", ModeDetailed.Ext())
	assert.Equal(t, "xlsx", ModeXLSX.Ext())
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, ok := ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, ModeSimple, m)
	_, ok = ParseMode("pdf")
	assert.False(t, ok)
}

func TestWorkbook(t *testing.T) {
	t.Parallel()

	sheets, result := fixture(t)
	fields := model.StandardFields()
	data, err := Workbook(result, result.Groups, sheets, fields)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	assert.Equal(t, []string{"A", "B", CompareSheetName}, f.GetSheetList())

	rows, err := f.GetRows("A")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "序号", rows[0][0])
	assert.Equal(t, "李四", rows[2][1])

	rows, err = f.GetRows(CompareSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "张三_X1", rows[1][1])
}

func TestWorkbook_Empty(t *testing.T) {
	t.Parallel()

	data, err := Workbook(nil, nil, nil, []string{model.FieldName})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	assert.Equal(t, []string{CompareSheetName}, f.GetSheetList())
}

func TestUniqueSheetName(t *testing.T) {
	t.Parallel()

	used := make(map[string]bool)
	assert.Equal(t, "a_b", uniqueSheetName("a/b", used))
	assert.Equal(t, "A_B(2)", uniqueSheetName("A/B", used))
	long := strings.Repeat("长", 40)
	got := uniqueSheetName(long, used)
	assert.Len(t, []rune(got), maxSheetNameLen)
}

func TestRender(t *testing.T) {
	t.Parallel()

	sheets, result := fixture(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local)

	f, err := Render(Request{Mode: ModeDetailed, Label: "数据整理结果", Result: result, Groups: result.Groups, Now: now})
	require.NoError(t, err)
	assert.Equal(t, "数据整理结果_20260101_000000.csv", f.Name)
	assert.Equal(t, "text/csv; charset=utf-8", f.ContentType)
	assert.True(t, bytes.HasPrefix(f.Data, utf8BOM))

	_, err = Render(Request{Mode: ModeSimple, Label: "x"})
	assert.Error(t, err)

	f, err = Render(Request{Mode: ModeXLSX, Label: "x", Sheets: sheets, Now: now})
	require.NoError(t, err)
	assert.Equal(t, "x_20260101_000000.xlsx", f.Name)
	assert.NotEmpty(t, f.Data)
}

package workbook

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/model"
)

// DefaultPreviewRows 预览默认行数
const DefaultPreviewRows = 5

// Workbook 已加载的 Excel 工作簿。
// 各 Sheet 的行数据首次读取后缓存，可被多个 goroutine 并发读取。
type Workbook struct {
	file *excelize.File

	mu   sync.Mutex
	rows map[string][][]string
}

// Open 从 reader 加载工作簿；无法解析（含 .xls 二进制格式）时返回校验错误
func Open(r io.Reader) (*Workbook, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.WithCode(apperr.CodeValidation, err, "无法读取 Excel 文件，仅支持 .xlsx 格式")
	}
	return &Workbook{file: file, rows: make(map[string][][]string)}, nil
}

// OpenFile 从磁盘加载工作簿
func OpenFile(path string) (*Workbook, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperr.WithCode(apperr.CodeValidation, err, "无法读取 Excel 文件，仅支持 .xlsx 格式")
	}
	return &Workbook{file: file, rows: make(map[string][][]string)}, nil
}

// Close 释放底层文件
func (w *Workbook) Close() error {
	return w.file.Close()
}

// SheetNames 按工作簿顺序返回 sheet 名
func (w *Workbook) SheetNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.GetSheetList()
}

func (w *Workbook) sheetRows(sheet string) ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rows, ok := w.rows[sheet]; ok {
		return rows, nil
	}
	if idx, err := w.file.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, apperr.NotFound("Sheet 不存在: %s", sheet)
	}
	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	w.rows[sheet] = rows
	return rows, nil
}

// Sheets 获取工作表列表：行数截至最后一个有内容的行（含中间的空行），列数为最宽一行的列数
func (w *Workbook) Sheets() ([]model.SheetInfo, error) {
	names := w.SheetNames()
	result := make([]model.SheetInfo, 0, len(names))
	for _, name := range names {
		rows, err := w.sheetRows(name)
		if err != nil {
			return nil, err
		}
		info := model.SheetInfo{Name: name, Rows: len(rows)}
		for _, row := range rows {
			if len(row) > info.Columns {
				info.Columns = len(row)
			}
		}
		result = append(result, info)
	}
	return result, nil
}

// Preview 返回前 maxRows 行原始数据（不区分表头），单元格已清理，行按最宽列补齐
func (w *Workbook) Preview(sheet string, maxRows int) ([][]string, error) {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	rows, err := w.sheetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	preview := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, width)
		for i, v := range row {
			cells[i] = CleanCell(v)
		}
		preview = append(preview, cells)
	}
	return preview, nil
}

// Columns 以第 headerRow 行（0-based）为表头，返回可选列名（空列、Unnamed 列、重名列已去除）
func (w *Workbook) Columns(sheet string, headerRow int) ([]string, error) {
	rows, err := w.sheetRows(sheet)
	if err != nil {
		return nil, err
	}
	if err := checkHeaderRow(headerRow, len(rows)); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	columns := make([]string, 0, len(rows[headerRow]))
	for _, h := range rows[headerRow] {
		name := NormalizeColumnName(h)
		if ignoredColumn(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		columns = append(columns, name)
	}
	return columns, nil
}

func checkHeaderRow(headerRow, total int) error {
	if headerRow < 0 {
		return apperr.Validation("表头行不能为负数: %d", headerRow)
	}
	if headerRow >= total {
		return apperr.Validation("表头行超出范围: 第 %d 行，共 %d 行", headerRow+1, total)
	}
	return nil
}

// Extract 按映射抽取记录。
// 出错时返回 success=false 的结果而不是 error，便于其他 Sheet 继续处理。
// 所有已映射字段都为空的行会被丢弃。
func (w *Workbook) Extract(sheet string, mapping model.SheetMapping) model.SheetResult {
	result := model.SheetResult{
		Name:    sheet,
		Mapping: copyFields(mapping.Fields),
		Records: []model.Record{},
	}

	rows, err := w.sheetRows(sheet)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if len(rows) == 0 {
		result.Success = true
		return result
	}
	if err := checkHeaderRow(mapping.HeaderRow, len(rows)); err != nil {
		result.Error = err.Error()
		return result
	}

	byName := headerIndex(rows[mapping.HeaderRow])
	columns := make(map[string]int, len(mapping.Fields))
	var missing []string
	for _, field := range model.StandardFields() {
		id, ok := mapping.Fields[field]
		if !ok || strings.TrimSpace(id) == "" {
			continue
		}
		idx, ok := resolveColumn(id, byName)
		if !ok {
			missing = append(missing, fmt.Sprintf("%s→%s", field, id))
			continue
		}
		columns[field] = idx
	}
	if len(missing) > 0 {
		result.Error = "列不存在: " + strings.Join(missing, ", ")
		return result
	}

	for i, row := range rows[mapping.HeaderRow+1:] {
		values := make(map[string]string, len(columns))
		hasData := false
		for field, idx := range columns {
			v := ""
			if idx < len(row) {
				v = strings.TrimSpace(row[idx])
			}
			values[field] = v
			if v != "" {
				hasData = true
			}
		}
		if !hasData {
			continue
		}
		result.Records = append(result.Records, model.Record{
			Row:    mapping.HeaderRow + i + 2,
			Values: values,
		})
	}

	result.Success = true
	result.RecordCount = len(result.Records)
	return result
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

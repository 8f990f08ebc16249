package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peter-zx/xuwei-data/internal/compare"
)

// utf8BOM 让 Excel 正确识别 UTF-8 编码
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const (
	seqLabel    = "序号"
	statusSame  = "完整"
	statusDiff  = "缺失"
	diffJoinSep = "、"
)

// Mode 导出格式
type Mode string

const (
	ModeSimple   Mode = "simple"
	ModeDetailed Mode = "detailed"
	ModeXLSX     Mode = "xlsx"
)

// ParseMode 解析导出格式，空值视为 simple
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeSimple:
		return ModeSimple, true
	case ModeDetailed:
		return ModeDetailed, true
	case ModeXLSX:
		return ModeXLSX, true
	default:
		return "", false
	}
}

// Ext 文件扩展名
func (m Mode) Ext() string {
	if m == ModeXLSX {
		return "xlsx"
	}
	return "csv"
}

// ContentType 下载时使用的 MIME 类型
func (m Mode) ContentType() string {
	if m == ModeXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// SimpleExport 每人一行，字段取各 Sheet 中第一个非空值。
// 单元格直接以逗号拼接，不做转义。
func SimpleExport(groups []*compare.Group, sheetNames, fields []string) []byte {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	buf.WriteString(strings.Join(append([]string{seqLabel}, fields...), ","))
	buf.WriteString("\n")

	for i, g := range groups {
		cells := make([]string, 0, len(fields)+1)
		cells = append(cells, strconv.Itoa(i+1))
		for _, field := range fields {
			cells = append(cells, firstValue(g, sheetNames, field))
		}
		buf.WriteString(strings.Join(cells, ","))
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// DetailedExport 每人一行，按 Sheet 展开各字段，并带状态、完整度与差异字段；按 CSV 规则转义
func DetailedExport(groups []*compare.Group, sheetNames, fields []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)

	if err := w.Write(DetailedHeader(sheetNames, fields)); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, g := range groups {
		if err := w.Write(DetailedRow(i+1, g, sheetNames, fields)); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// DetailedHeader 明细导出的表头
func DetailedHeader(sheetNames, fields []string) []string {
	header := []string{seqLabel, "人员标识", "状态", "完整度", "差异字段"}
	for _, sheet := range sheetNames {
		for _, field := range fields {
			header = append(header, sheet+"-"+field)
		}
	}
	return header
}

// DetailedRow 明细导出的一行
func DetailedRow(seq int, g *compare.Group, sheetNames, fields []string) []string {
	status := statusDiff
	if g.IsSame {
		status = statusSame
	}

	// 完整度按导出的字段计算
	filled := 0
	var diffs []string
	for _, field := range fields {
		if firstValue(g, sheetNames, field) != "" {
			filled++
		}
		if _, ok := g.FieldDisagreements[field]; ok {
			diffs = append(diffs, field)
		}
	}

	row := []string{
		strconv.Itoa(seq),
		g.Key,
		status,
		fmt.Sprintf("%d/%d", filled, len(fields)),
		strings.Join(diffs, diffJoinSep),
	}
	for _, sheet := range sheetNames {
		rec, ok := g.PerSheet[sheet]
		for _, field := range fields {
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, rec.Get(field))
		}
	}
	return row
}

func firstValue(g *compare.Group, sheetNames []string, field string) string {
	for _, sheet := range sheetNames {
		rec, ok := g.PerSheet[sheet]
		if !ok {
			continue
		}
		if v := strings.TrimSpace(rec.Get(field)); v != "" {
			return v
		}
	}
	return ""
}

// Filename 导出文件名：<label>_<YYYYMMDD_HHMMSS>.<ext>
func Filename(label, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", label, now.Format("20060102_150405"), ext)
}

package workbook

import (
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	columnRe      = regexp.MustCompile(`^[A-Za-z]{1,3}$`)
	coordinateRe  = regexp.MustCompile(`^[A-Za-z]{1,3}[0-9]+$`)
	unnamedPrefix = "Unnamed"
)

// CleanCell 清理预览单元格：去掉换行符和首尾空格
func CleanCell(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	return strings.TrimSpace(v)
}

// NormalizeColumnName 规范化列名，去除所有空白字符
func NormalizeColumnName(name string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(name), "")
}

// ignoredColumn 空列名和 Unnamed 占位列不作为可选列
func ignoredColumn(name string) bool {
	return name == "" || strings.HasPrefix(name, unnamedPrefix)
}

// IsColumnRef 判断是否为列字母（A、AB）或单元格坐标（C2）
func IsColumnRef(id string) bool {
	return columnRe.MatchString(id) || coordinateRe.MatchString(id)
}

// columnIndex 将列字母或单元格坐标转为 0-based 列号，坐标只取列部分
func columnIndex(id string) (int, bool) {
	col := id
	if coordinateRe.MatchString(id) {
		c, _, err := excelize.SplitCellName(id)
		if err != nil {
			return 0, false
		}
		col = c
	} else if !columnRe.MatchString(id) {
		return 0, false
	}
	n, err := excelize.ColumnNameToNumber(strings.ToUpper(col))
	if err != nil {
		return 0, false
	}
	return n - 1, true
}

// headerIndex 表头名 -> 列号；重名列取第一次出现的位置
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := NormalizeColumnName(h)
		if ignoredColumn(name) {
			continue
		}
		if _, exists := idx[name]; !exists {
			idx[name] = i
		}
	}
	return idx
}

// resolveColumn 解析列标识：优先按表头名，其次按列字母/单元格坐标
func resolveColumn(id string, byName map[string]int) (int, bool) {
	name := NormalizeColumnName(id)
	if i, ok := byName[name]; ok {
		return i, true
	}
	return columnIndex(name)
}

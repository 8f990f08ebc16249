package main

import (
	"fmt"
	"strconv"
	"strings"
)

type fieldFlag struct {
	sheet  string
	field  string
	column string
}

// parseFieldFlag 解析 "sheet:字段=列"，列可以是表头名、列字母或单元格坐标；列为空表示取消映射
func parseFieldFlag(s string) (fieldFlag, error) {
	sheet, rest, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(sheet) == "" {
		return fieldFlag{}, fmt.Errorf("映射格式应为 sheet:字段=列: %q", s)
	}
	field, column, ok := strings.Cut(rest, "=")
	if !ok || strings.TrimSpace(field) == "" {
		return fieldFlag{}, fmt.Errorf("映射格式应为 sheet:字段=列: %q", s)
	}
	return fieldFlag{
		sheet:  strings.TrimSpace(sheet),
		field:  strings.TrimSpace(field),
		column: strings.TrimSpace(column),
	}, nil
}

// parseHeaderFlag 解析 "sheet=行号"，行号从 1 开始，返回 0-based 行
func parseHeaderFlag(s string) (string, int, error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 {
		return "", 0, fmt.Errorf("表头行格式应为 sheet=行号: %q", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s[i+1:]))
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("表头行号应为正整数: %q", s)
	}
	return strings.TrimSpace(s[:i]), n - 1, nil
}

type editFlag struct {
	key   string
	sheet string
	field string
	value string
}

// parseEditFlag 解析 "人员标识,sheet,字段=新值"
func parseEditFlag(s string) (editFlag, error) {
	target, value, ok := strings.Cut(s, "=")
	if !ok {
		return editFlag{}, fmt.Errorf("修改格式应为 人员标识,sheet,字段=新值: %q", s)
	}
	parts := strings.Split(target, ",")
	if len(parts) != 3 {
		return editFlag{}, fmt.Errorf("修改格式应为 人员标识,sheet,字段=新值: %q", s)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return editFlag{}, fmt.Errorf("修改格式应为 人员标识,sheet,字段=新值: %q", s)
		}
	}
	return editFlag{key: parts[0], sheet: parts[1], field: parts[2], value: value}, nil
}

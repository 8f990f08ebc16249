package model

import "strings"

// SheetMapping 单个 Sheet 的映射配置
type SheetMapping struct {
	HeaderRow int               `json:"header_row"` // 表头所在行（0-based）
	Fields    map[string]string `json:"fields"`     // 标准字段 -> 源列标识（表头名 / 列字母 / 单元格坐标）
}

// MappingConfig 全部 Sheet 的映射配置：sheet 名 -> 映射
type MappingConfig map[string]SheetMapping

// Clean 去掉空的列标识与非标准字段，返回新的配置
func (m MappingConfig) Clean() MappingConfig {
	out := make(MappingConfig, len(m))
	for sheet, sm := range m {
		fields := make(map[string]string, len(sm.Fields))
		for field, col := range sm.Fields {
			col = strings.TrimSpace(col)
			if col == "" || !IsStandardField(field) {
				continue
			}
			fields[field] = col
		}
		out[sheet] = SheetMapping{HeaderRow: sm.HeaderRow, Fields: fields}
	}
	return out
}

// Clone 深拷贝
func (m MappingConfig) Clone() MappingConfig {
	out := make(MappingConfig, len(m))
	for sheet, sm := range m {
		fields := make(map[string]string, len(sm.Fields))
		for k, v := range sm.Fields {
			fields[k] = v
		}
		out[sheet] = SheetMapping{HeaderRow: sm.HeaderRow, Fields: fields}
	}
	return out
}

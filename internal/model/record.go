package model

// Record 单条抽取记录：标准字段 -> 值
type Record struct {
	Row    int               `json:"row"` // 源数据所在 Excel 行号（1-based）
	Values map[string]string `json:"values"`
}

// Get 读取字段值，缺失视为空
func (r Record) Get(field string) string {
	if r.Values == nil {
		return ""
	}
	return r.Values[field]
}

// Clone 深拷贝
func (r Record) Clone() Record {
	values := make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Record{Row: r.Row, Values: values}
}

// SheetResult 单个 Sheet 的抽取结果
type SheetResult struct {
	Name        string            `json:"name"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Mapping     map[string]string `json:"mapping"`
	Records     []Record          `json:"data"`
	RecordCount int               `json:"record_count"`
}

// Usable 是否参与对比：成功且至少一条记录
func (r SheetResult) Usable() bool {
	return r.Success && len(r.Records) > 0
}

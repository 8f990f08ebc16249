package model

import "fmt"

// SheetInfo 工作表信息
type SheetInfo struct {
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// UploadInfo 上传文件信息
type UploadInfo struct {
	FileID      string      `json:"file_id"`
	Filename    string      `json:"filename"`
	Size        int64       `json:"size"`
	Sheets      []SheetInfo `json:"sheets"`
	SheetCount  int         `json:"sheet_count"`
	Fingerprint string      `json:"fingerprint"`
}

// SheetNames 按工作簿顺序返回 sheet 名
func (u UploadInfo) SheetNames() []string {
	names := make([]string, 0, len(u.Sheets))
	for _, s := range u.Sheets {
		names = append(names, s.Name)
	}
	return names
}

// Fingerprint 映射缓存键：文件名 + 文件大小 + sheet 数量
func Fingerprint(filename string, size int64, sheetCount int) string {
	return fmt.Sprintf("%s_%d_%d", filename, size, sheetCount)
}

// MaxCachedMappings 映射缓存最多保留的条目数
const MaxCachedMappings = 10

// ColumnsInfo 指定表头行下的可选列与推荐映射
type ColumnsInfo struct {
	Columns   []string          `json:"columns"`
	Suggested map[string]string `json:"suggested"`
}

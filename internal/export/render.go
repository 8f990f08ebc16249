package export

import (
	"time"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/model"
)

// File 导出的文件
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Request 导出所需的数据
type Request struct {
	Mode   Mode
	Label  string
	Result *compare.Result     // CSV 导出必需；xlsx 可为空
	Groups []*compare.Group    // 已筛选的分组，顺序即导出顺序
	Sheets []model.SheetResult // xlsx 导出时逐 Sheet 输出
	Fields []string            // 为空时使用标准字段
	Now    time.Time
}

// Render 按导出格式生成文件
func Render(req Request) (File, error) {
	fields := req.Fields
	if len(fields) == 0 {
		fields = model.StandardFields()
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	file := File{
		Name:        Filename(req.Label, req.Mode.Ext(), req.Now),
		ContentType: req.Mode.ContentType(),
	}

	switch req.Mode {
	case ModeSimple, ModeDetailed:
		if req.Result == nil {
			return File{}, apperr.Validation("没有可导出的对比结果")
		}
		if req.Mode == ModeSimple {
			file.Data = SimpleExport(req.Groups, req.Result.SheetNames, fields)
			break
		}
		data, err := DetailedExport(req.Groups, req.Result.SheetNames, fields)
		if err != nil {
			return File{}, apperr.Wrap(err, "生成 CSV 失败")
		}
		file.Data = data
	case ModeXLSX:
		data, err := Workbook(req.Result, req.Groups, req.Sheets, fields)
		if err != nil {
			return File{}, apperr.Wrap(err, "生成 Excel 失败")
		}
		file.Data = data
	default:
		return File{}, apperr.Validation("未知的导出格式: %s", req.Mode)
	}
	return file, nil
}

package compare

import (
	"github.com/peter-zx/xuwei-data/internal/apperr"
)

// EditField 修改某人员在某 Sheet 中的字段值，返回新的对比结果。
// 原结果不被修改；完整度、差异字段与统计会随之重新计算。
// 修改标识字段不会改变分组的人员标识。
func EditField(r *Result, key, sheet, field, value string) (*Result, error) {
	if r == nil {
		return nil, apperr.Validation("没有可编辑的对比结果")
	}
	if !containsString(r.Fields, field) {
		return nil, apperr.Validation("未知字段: %s", field)
	}
	if _, ok := r.Group(key); !ok {
		return nil, apperr.GroupNotFound(key)
	}

	next := r.clone()
	g, _ := next.Group(key)
	rec, ok := g.PerSheet[sheet]
	if !ok {
		return nil, apperr.SheetNotFound(key, sheet)
	}
	rec.Values[field] = value
	g.PerSheet[sheet] = rec

	derive(g, next.SheetNames, next.Fields)
	finalize(next)
	return next, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package compare

import (
	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/model"
)

// Filter 分组筛选条件
type Filter string

const (
	FilterAll  Filter = "all"
	FilterSame Filter = "same" // 每个 Sheet 都有记录
	FilterDiff Filter = "diff" // 至少缺一个 Sheet
)

// ParseFilter 解析筛选条件，空值视为 all
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterSame:
		return FilterSame, nil
	case FilterDiff:
		return FilterDiff, nil
	default:
		return "", apperr.Validation("未知的筛选条件: %s", s)
	}
}

// Group 同一人员在各 Sheet 中的记录
type Group struct {
	Key                string                  `json:"key"`
	PerSheet           map[string]model.Record `json:"per_sheet"`
	Completeness       int                     `json:"completeness"`
	FieldDisagreements map[string][]string     `json:"field_disagreements"`
	IsComplete         bool                    `json:"is_complete"`
	IsSame             bool                    `json:"is_same"`
}

// HasDiff 是否存在字段取值不一致
func (g *Group) HasDiff() bool {
	return len(g.FieldDisagreements) > 0
}

func (g *Group) clone() *Group {
	per := make(map[string]model.Record, len(g.PerSheet))
	for sheet, rec := range g.PerSheet {
		per[sheet] = rec.Clone()
	}
	diffs := make(map[string][]string, len(g.FieldDisagreements))
	for field, values := range g.FieldDisagreements {
		diffs[field] = append([]string(nil), values...)
	}
	return &Group{
		Key:                g.Key,
		PerSheet:           per,
		Completeness:       g.Completeness,
		FieldDisagreements: diffs,
		IsComplete:         g.IsComplete,
		IsSame:             g.IsSame,
	}
}

// Stats 对比统计
type Stats struct {
	Total              int     `json:"total"`
	CompleteCount      int     `json:"complete_count"`
	IncompleteCount    int     `json:"incomplete_count"`
	WithDiffCount      int     `json:"with_diff_count"`
	AvgCompleteness    float64 `json:"avg_completeness"`
	MedianCompleteness float64 `json:"median_completeness"`
}

// DuplicateKeyWarning 同一 Sheet 内出现重复人员标识（后出现的行覆盖前面的行）
type DuplicateKeyWarning struct {
	Sheet string `json:"sheet"`
	Key   string `json:"key"`
	Rows  []int  `json:"rows"`
}

// Result 对比结果，每次对比整体替换
type Result struct {
	SheetNames []string              `json:"sheet_names"`
	Fields     []string              `json:"fields"`
	Identity   model.Identity        `json:"identity"`
	Groups     []*Group              `json:"groups"`
	Stats      Stats                 `json:"stats"`
	Warnings   []DuplicateKeyWarning `json:"warnings,omitempty"`
}

// Group 按人员标识查找分组
func (r *Result) Group(key string) (*Group, bool) {
	for _, g := range r.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return nil, false
}

func (r *Result) clone() *Result {
	groups := make([]*Group, len(r.Groups))
	for i, g := range r.Groups {
		groups[i] = g.clone()
	}
	return &Result{
		SheetNames: append([]string(nil), r.SheetNames...),
		Fields:     append([]string(nil), r.Fields...),
		Identity:   r.Identity,
		Groups:     groups,
		Stats:      r.Stats,
		Warnings:   append([]DuplicateKeyWarning(nil), r.Warnings...),
	}
}

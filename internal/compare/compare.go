package compare

import (
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/model"
)

type options struct {
	identity model.Identity
	fields   []string
}

// Option 对比选项
type Option func(*options)

// WithIdentity 指定人员标识口径
func WithIdentity(identity model.Identity) Option {
	return func(o *options) {
		o.identity = identity
	}
}

// Compare 将多个 Sheet 的记录按人员合并分组。
// 失败或无记录的 Sheet 不参与对比；可用 Sheet 少于 2 个时返回 InsufficientSheets。
func Compare(sheets []model.SheetResult, opts ...Option) (*Result, error) {
	o := options{identity: model.IdentityCertificateNo, fields: model.StandardFields()}
	for _, opt := range opts {
		opt(&o)
	}

	included := make([]model.SheetResult, 0, len(sheets))
	for _, s := range sheets {
		if s.Usable() {
			included = append(included, s)
		}
	}
	if len(included) < 2 {
		return nil, apperr.InsufficientSheets(len(included))
	}

	sheetNames := make([]string, len(included))
	for i, s := range included {
		sheetNames[i] = s.Name
	}

	groups := make(map[string]*Group)
	var warnings []DuplicateKeyWarning

	for _, sheet := range included {
		rowsByKey := make(map[string][]int)
		var keyOrder []string

		for _, rec := range sheet.Records {
			key, ok := PersonKey(rec, o.identity)
			if !ok {
				continue
			}
			g, exists := groups[key]
			if !exists {
				g = &Group{Key: key, PerSheet: make(map[string]model.Record)}
				groups[key] = g
			}
			// 同一 Sheet 重复出现时后者覆盖前者
			g.PerSheet[sheet.Name] = rec.Clone()

			if _, seen := rowsByKey[key]; !seen {
				keyOrder = append(keyOrder, key)
			}
			rowsByKey[key] = append(rowsByKey[key], rec.Row)
		}

		for _, key := range keyOrder {
			if rows := rowsByKey[key]; len(rows) > 1 {
				warnings = append(warnings, DuplicateKeyWarning{Sheet: sheet.Name, Key: key, Rows: rows})
			}
		}
	}

	result := &Result{
		SheetNames: sheetNames,
		Fields:     o.fields,
		Identity:   o.identity,
		Groups:     make([]*Group, 0, len(groups)),
		Warnings:   warnings,
	}
	for _, g := range groups {
		derive(g, sheetNames, o.fields)
		result.Groups = append(result.Groups, g)
	}
	finalize(result)
	return result, nil
}

// derive 重新计算分组的派生字段
func derive(g *Group, sheetNames []string, fields []string) {
	g.Completeness = 0
	g.FieldDisagreements = make(map[string][]string)

	for _, field := range fields {
		var distinct []string
		seen := make(map[string]struct{})
		for _, sheet := range sheetNames {
			rec, ok := g.PerSheet[sheet]
			if !ok {
				continue
			}
			v := strings.TrimSpace(rec.Get(field))
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			distinct = append(distinct, v)
		}
		if len(distinct) > 0 {
			g.Completeness++
		}
		if len(distinct) > 1 {
			g.FieldDisagreements[field] = distinct
		}
	}

	complete := true
	for _, sheet := range sheetNames {
		if _, ok := g.PerSheet[sheet]; !ok {
			complete = false
			break
		}
	}
	g.IsComplete = complete
	g.IsSame = complete
}

// finalize 排序并统计：完整分组在前，组内按人员标识升序
func finalize(r *Result) {
	sort.SliceStable(r.Groups, func(i, j int) bool {
		a, b := r.Groups[i], r.Groups[j]
		if a.IsSame != b.IsSame {
			return a.IsSame
		}
		return a.Key < b.Key
	})

	st := Stats{Total: len(r.Groups)}
	completeness := make(stats.Float64Data, 0, len(r.Groups))
	for _, g := range r.Groups {
		if g.IsComplete {
			st.CompleteCount++
		} else {
			st.IncompleteCount++
		}
		if g.HasDiff() {
			st.WithDiffCount++
		}
		completeness = append(completeness, float64(g.Completeness))
	}
	if len(completeness) > 0 {
		st.AvgCompleteness, _ = completeness.Mean()
		st.MedianCompleteness, _ = completeness.Median()
	}
	r.Stats = st
}

// FilterGroups 按条件筛选分组，保持原有顺序
func FilterGroups(r *Result, f Filter) []*Group {
	if r == nil {
		return nil
	}
	out := make([]*Group, 0, len(r.Groups))
	for _, g := range r.Groups {
		switch f {
		case FilterSame:
			if !g.IsSame {
				continue
			}
		case FilterDiff:
			if g.IsSame {
				continue
			}
		}
		out = append(out, g)
	}
	return out
}

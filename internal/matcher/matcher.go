package matcher

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/peter-zx/xuwei-data/internal/model"
)

// Preset 预置映射：sheet 名同时包含全部关键词时直接采用
type Preset struct {
	Name          string            `toml:"name" json:"name"`
	SheetKeywords []string          `toml:"sheet_keywords" json:"sheet_keywords"`
	Fields        map[string]string `toml:"fields" json:"fields"`
}

// Matches 判断 sheet 名是否命中该预置
func (p Preset) Matches(sheetName string) bool {
	if len(p.SheetKeywords) == 0 {
		return false
	}
	for _, kw := range p.SheetKeywords {
		if !strings.Contains(sheetName, kw) {
			return false
		}
	}
	return true
}

// Matcher 表头匹配器
type Matcher struct {
	keywords map[string][]string
	presets  []Preset
	order    []string
}

// Option 匹配器选项
type Option func(*Matcher)

// WithKeywords 追加字段关键词，追加的关键词先于默认关键词匹配
func WithKeywords(keywords map[string][]string) Option {
	return func(m *Matcher) {
		for field, kws := range keywords {
			m.keywords[field] = append(append([]string(nil), kws...), m.keywords[field]...)
		}
	}
}

// WithPresets 设置预置映射
func WithPresets(presets []Preset) Option {
	return func(m *Matcher) {
		m.presets = append([]Preset(nil), presets...)
	}
}

// New 创建匹配器
func New(opts ...Option) *Matcher {
	m := &Matcher{keywords: DefaultKeywords()}
	for _, opt := range opts {
		opt(m)
	}

	// 名称更长的字段先认领列，避免“残疾证”抢走“残疾证号”的列
	m.order = model.StandardFields()
	sort.SliceStable(m.order, func(i, j int) bool {
		return utf8.RuneCountInString(m.order[i]) > utf8.RuneCountInString(m.order[j])
	})
	return m
}

// DefaultKeywords 默认关键词表
func DefaultKeywords() map[string][]string {
	return map[string][]string{
		model.FieldName:             {"姓名", "名字", "name"},
		model.FieldPhone:            {"电话", "手机", "联系方式", "phone", "tel", "mobile"},
		model.FieldIDCard:           {"身份证号", "公民身份", "证件号码", "身份证"},
		model.FieldDisability:       {"残疾人证", "残疾证"},
		model.FieldIDCardExpiry:     {"身份证到期", "身份证有效期", "身份证截止"},
		model.FieldDisabilityExpiry: {"残疾证到期", "残疾证有效期", "残疾证截止"},
		model.FieldDisabilityLevel:  {"残疾等级", "残疾级别", "等级"},
		model.FieldDisabilityType:   {"残疾类型", "残疾类别", "类别"},
		model.FieldDisabilityNo:     {"残疾证号", "残疾人证号"},
	}
}

// PresetFor 返回第一个命中 sheet 名的预置
func (m *Matcher) PresetFor(sheetName string) (Preset, bool) {
	for _, p := range m.presets {
		if p.Matches(sheetName) {
			return p, true
		}
	}
	return Preset{}, false
}

// Suggest 为 sheet 推荐映射：预置 > 精确匹配 > 关键词 > 包含关系。
// 每列最多分配给一个字段；没有合适列的字段不出现在结果中。
func (m *Matcher) Suggest(sheetName string, columns []string) map[string]string {
	out := make(map[string]string)
	claimed := make(map[string]bool)

	if p, ok := m.PresetFor(sheetName); ok {
		for field, col := range p.Fields {
			if col = strings.TrimSpace(col); col != "" && model.IsStandardField(field) {
				out[field] = col
				claimed[col] = true
			}
		}
	}

	candidates := make([]string, 0, len(columns))
	for _, c := range columns {
		if c = strings.TrimSpace(c); c != "" {
			candidates = append(candidates, c)
		}
	}

	assign := func(field, col string) {
		out[field] = col
		claimed[col] = true
	}

	for _, field := range m.order {
		if _, done := out[field]; done {
			continue
		}
		for _, col := range candidates {
			if col == field && !claimed[col] {
				assign(field, col)
				break
			}
		}
	}

	for _, field := range m.order {
		if _, done := out[field]; done {
			continue
		}
		if col, ok := m.byKeyword(field, candidates, claimed); ok {
			assign(field, col)
		}
	}

	for _, field := range m.order {
		if _, done := out[field]; done {
			continue
		}
		if col, ok := bySubstring(field, candidates, claimed); ok {
			assign(field, col)
		}
	}

	return out
}

func (m *Matcher) byKeyword(field string, columns []string, claimed map[string]bool) (string, bool) {
	for _, kw := range m.keywords[field] {
		kw = strings.ToLower(kw)
		for _, col := range columns {
			if claimed[col] {
				continue
			}
			if strings.Contains(strings.ToLower(col), kw) {
				return col, true
			}
		}
	}
	return "", false
}

func bySubstring(field string, columns []string, claimed map[string]bool) (string, bool) {
	target := strings.ToLower(field)
	for _, col := range columns {
		if claimed[col] {
			continue
		}
		c := strings.ToLower(col)
		if strings.Contains(c, target) {
			return col, true
		}
		// 过短的列名反向包含容易误配
		if utf8.RuneCountInString(c) >= 2 && strings.Contains(target, c) {
			return col, true
		}
	}
	return "", false
}

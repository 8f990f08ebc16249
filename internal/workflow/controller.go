// Package workflow 驱动一次整理会话：上传 → 预览 → 映射 → 抽取 → 对比 → 结果。
package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/export"
	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/workbook"
)

// Step 会话所处步骤
type Step int

const (
	StepUpload Step = iota + 1
	StepPreview
	StepMapping
	StepData
	StepCompare
	StepResults
)

var stepNames = map[Step]string{
	StepUpload:  "upload",
	StepPreview: "preview",
	StepMapping: "mapping",
	StepData:    "data",
	StepCompare: "compare",
	StepResults: "results",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// ErrSuperseded 请求返回时会话已被更新的操作取代，响应被丢弃
var ErrSuperseded = errors.New("workflow: superseded by a newer request")

// Backend 抽取服务：本地 service.Service 或远端 client.Client
type Backend interface {
	Upload(ctx context.Context, filename string, r io.Reader) (model.UploadInfo, error)
	Preview(ctx context.Context, fileID, sheet string, maxRows int) ([][]string, error)
	Columns(ctx context.Context, fileID, sheet string, headerRow int) (model.ColumnsInfo, error)
	Analyze(ctx context.Context, fileID string, mappings model.MappingConfig) ([]model.SheetResult, error)
}

// Comparer 由后端计算对比结果
type Comparer interface {
	Compare(ctx context.Context, fileID string, mappings model.MappingConfig) (*compare.Result, error)
}

// MappingCache 映射缓存，按文件指纹存取
type MappingCache interface {
	LoadMapping(ctx context.Context, fingerprint string) (model.MappingConfig, bool, error)
	SaveMapping(ctx context.Context, fingerprint string, mappings model.MappingConfig) error
	DeleteMapping(ctx context.Context, fingerprint string) error
}

// State 会话状态快照
type State struct {
	Step     Step
	Upload   *model.UploadInfo
	Previews map[string][][]string
	Columns  map[string]model.ColumnsInfo
	Mappings model.MappingConfig
	Results  []model.SheetResult
	Result   *compare.Result
	Filter   compare.Filter
}

// Controller 会话控制器。所有状态修改都经由其方法完成；
// 网络调用期间不持锁，返回时若会话已被新的请求取代则丢弃响应。
type Controller struct {
	backend  Backend
	cache    MappingCache
	logger   *slog.Logger
	identity model.Identity
	label    string
	remote   bool
	now      func() time.Time

	mu        sync.Mutex
	gen       uint64
	state     State
	headerSet map[string]bool
}

// Option 控制器选项
type Option func(*Controller)

// WithMappingCache 设置映射缓存
func WithMappingCache(cache MappingCache) Option {
	return func(c *Controller) {
		c.cache = cache
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithIdentity 本地对比使用的人员标识口径
func WithIdentity(identity model.Identity) Option {
	return func(c *Controller) {
		c.identity = identity
	}
}

// WithExportLabel 导出文件名前缀
func WithExportLabel(label string) Option {
	return func(c *Controller) {
		if label != "" {
			c.label = label
		}
	}
}

// WithRemoteCompare 后端实现 Comparer 时由后端计算对比结果
func WithRemoteCompare(enabled bool) Option {
	return func(c *Controller) {
		c.remote = enabled
	}
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New 创建控制器
func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:  backend,
		identity: model.IdentityCertificateNo,
		label:    "数据整理结果",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.resetLocked()
	return c
}

func (c *Controller) resetLocked() {
	c.gen++
	c.state = State{Step: StepUpload, Filter: compare.FilterAll}
	c.headerSet = make(map[string]bool)
}

// State 返回当前状态的快照
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	if s.Upload != nil {
		info := *s.Upload
		s.Upload = &info
	}
	s.Mappings = c.state.Mappings.Clone()
	s.Results = append([]model.SheetResult(nil), c.state.Results...)
	s.Previews = make(map[string][][]string, len(c.state.Previews))
	for k, v := range c.state.Previews {
		s.Previews[k] = v
	}
	s.Columns = make(map[string]model.ColumnsInfo, len(c.state.Columns))
	for k, v := range c.state.Columns {
		s.Columns[k] = v
	}
	return s
}

// Step 当前步骤
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Step
}

// Reset 丢弃会话，回到第一步；进行中的请求返回后被丢弃
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Back 回到之前的步骤，已有数据保留
func (c *Controller) Back(step Step) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if step < StepUpload || step > c.state.Step {
		return apperr.Validation("无法从 %s 返回到 %s", c.state.Step, step)
	}
	if step == StepUpload {
		c.resetLocked()
		return nil
	}
	c.state.Step = step
	return nil
}

// Upload 上传工作簿，开始新的会话
func (c *Controller) Upload(ctx context.Context, filename string, r io.Reader) (model.UploadInfo, error) {
	c.mu.Lock()
	c.resetLocked()
	gen := c.gen
	c.mu.Unlock()

	info, err := c.backend.Upload(ctx, filename, r)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return model.UploadInfo{}, ErrSuperseded
	}
	if err != nil {
		c.logger.WarnContext(ctx, "upload failed", "filename", filename, "error", err)
		return model.UploadInfo{}, err
	}

	c.state.Upload = &info
	c.state.Mappings = make(model.MappingConfig, len(info.Sheets))
	for _, s := range info.Sheets {
		c.state.Mappings[s.Name] = model.SheetMapping{Fields: map[string]string{}}
	}
	c.state.Step = StepPreview
	c.logger.InfoContext(ctx, "workbook uploaded", "file_id", info.FileID, "sheets", info.SheetCount)
	return info, nil
}

// begin 校验前置状态并开始一次网络请求
func (c *Controller) begin(need Step) (model.UploadInfo, uint64, error) {
	if c.state.Upload == nil {
		return model.UploadInfo{}, 0, apperr.Validation("请先上传文件")
	}
	if c.state.Step < need {
		return model.UploadInfo{}, 0, apperr.Validation("当前步骤 %s 不能执行该操作", c.state.Step)
	}
	return *c.state.Upload, c.gen, nil
}

// LoadPreviews 读取每个 sheet 的前 maxRows 行
func (c *Controller) LoadPreviews(ctx context.Context, maxRows int) (map[string][][]string, error) {
	c.mu.Lock()
	info, gen, err := c.begin(StepPreview)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	previews := make(map[string][][]string, len(info.Sheets))
	var loadErr error
	for _, name := range info.SheetNames() {
		rows, err := c.backend.Preview(ctx, info.FileID, name, maxRows)
		if err != nil {
			loadErr = apperr.Wrap(err, "预览 "+name+" 失败")
			break
		}
		previews[name] = rows
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil, ErrSuperseded
	}
	if loadErr != nil {
		c.state.Step = StepUpload
		return nil, loadErr
	}
	c.state.Previews = previews
	return previews, nil
}

// SetHeaderRow 设置 sheet 的表头行（0-based），已加载的列需重新获取
func (c *Controller) SetHeaderRow(sheet string, row int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sm, ok := c.state.Mappings[sheet]
	if !ok {
		return apperr.NotFound("sheet 不存在: %s", sheet)
	}
	if row < 0 {
		return apperr.Validation("表头行不能为负数: %d", row)
	}
	sm.HeaderRow = row
	c.state.Mappings[sheet] = sm
	c.headerSet[sheet] = true
	delete(c.state.Columns, sheet)
	return nil
}

// LoadColumns 按表头行获取各 sheet 的列名，并填入映射：
// 缓存中有该文件的映射时沿用，否则采用推荐映射
func (c *Controller) LoadColumns(ctx context.Context) error {
	c.mu.Lock()
	info, gen, err := c.begin(StepPreview)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	mappings := c.state.Mappings.Clone()
	headerSet := make(map[string]bool, len(c.headerSet))
	for k, v := range c.headerSet {
		headerSet[k] = v
	}
	c.mu.Unlock()

	var cached model.MappingConfig
	if c.cache != nil {
		cfg, ok, err := c.cache.LoadMapping(ctx, info.Fingerprint)
		if err != nil {
			c.logger.WarnContext(ctx, "load mapping cache failed", "fingerprint", info.Fingerprint, "error", err)
		} else if ok {
			cached = cfg
		}
	}

	columns := make(map[string]model.ColumnsInfo, len(info.Sheets))
	var loadErr error
	for _, name := range info.SheetNames() {
		sm := mappings[name]
		hit, fromCache := cached[name]
		if fromCache && !headerSet[name] {
			sm.HeaderRow = hit.HeaderRow
		}

		cols, err := c.backend.Columns(ctx, info.FileID, name, sm.HeaderRow)
		if err != nil {
			loadErr = apperr.Wrap(err, "获取 "+name+" 的列失败")
			break
		}
		columns[name] = cols

		if fromCache && hit.HeaderRow == sm.HeaderRow {
			sm.Fields = usableFields(hit.Fields, cols.Columns)
		} else {
			sm.Fields = make(map[string]string, len(cols.Suggested))
			for field, col := range cols.Suggested {
				sm.Fields[field] = col
			}
		}
		mappings[name] = sm
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return ErrSuperseded
	}
	if loadErr != nil {
		c.state.Step = StepPreview
		return loadErr
	}
	c.state.Columns = columns
	c.state.Mappings = mappings
	c.state.Step = StepMapping
	if cached != nil {
		c.logger.InfoContext(ctx, "mapping restored from cache", "fingerprint", info.Fingerprint)
	}
	return nil
}

// usableFields 保留仍能在当前列中找到，或以列字母/坐标指定的缓存映射
func usableFields(fields map[string]string, columns []string) map[string]string {
	present := make(map[string]bool, len(columns))
	for _, col := range columns {
		present[col] = true
	}
	out := make(map[string]string, len(fields))
	for field, col := range fields {
		if present[col] || workbook.IsColumnRef(col) {
			out[field] = col
		}
	}
	return out
}

// SetField 设置字段对应的列；column 为空表示取消映射
func (c *Controller) SetField(sheet, field, column string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sm, ok := c.state.Mappings[sheet]
	if !ok {
		return apperr.NotFound("sheet 不存在: %s", sheet)
	}
	if !model.IsStandardField(field) {
		return apperr.Validation("未知字段: %s", field)
	}
	if sm.Fields == nil {
		sm.Fields = make(map[string]string)
	}
	if column == "" {
		delete(sm.Fields, field)
	} else {
		sm.Fields[field] = column
	}
	c.state.Mappings[sheet] = sm
	return nil
}

// Analyze 提交映射抽取数据。成功后保存映射缓存并进入数据步骤；失败回到映射步骤。
func (c *Controller) Analyze(ctx context.Context) ([]model.SheetResult, error) {
	c.mu.Lock()
	info, _, err := c.begin(StepMapping)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.gen++
	gen := c.gen
	mappings := c.state.Mappings.Clean()
	c.mu.Unlock()

	results, err := c.backend.Analyze(ctx, info.FileID, mappings)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "discard superseded analysis", "file_id", info.FileID)
		return nil, ErrSuperseded
	}
	if err != nil {
		c.state.Step = StepMapping
		c.mu.Unlock()
		c.logger.WarnContext(ctx, "analysis failed", "file_id", info.FileID, "error", err)
		return nil, err
	}
	c.state.Results = results
	c.state.Result = nil
	c.state.Filter = compare.FilterAll
	c.state.Step = StepData
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.SaveMapping(ctx, info.Fingerprint, mappings); err != nil {
			c.logger.WarnContext(ctx, "save mapping cache failed", "fingerprint", info.Fingerprint, "error", err)
		}
	}
	return append([]model.SheetResult(nil), results...), nil
}

// Compare 对抽取结果做跨 sheet 对比。可用 sheet 不足时停留在数据步骤。
func (c *Controller) Compare(ctx context.Context) (*compare.Result, error) {
	c.mu.Lock()
	info, _, err := c.begin(StepData)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.state.Results == nil {
		c.mu.Unlock()
		return nil, apperr.Validation("请先完成数据抽取")
	}
	c.gen++
	gen := c.gen
	results := c.state.Results
	mappings := c.state.Mappings.Clean()
	c.state.Step = StepCompare
	c.mu.Unlock()

	var result *compare.Result
	if rc, ok := c.backend.(Comparer); ok && c.remote {
		result, err = rc.Compare(ctx, info.FileID, mappings)
	} else {
		result, err = compare.Compare(results, compare.WithIdentity(c.identity))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil, ErrSuperseded
	}
	if err != nil {
		c.state.Result = nil
		c.state.Step = StepData
		return nil, err
	}
	for _, w := range result.Warnings {
		c.logger.WarnContext(ctx, "duplicate person key", "sheet", w.Sheet, "key", w.Key, "rows", w.Rows)
	}
	c.state.Result = result
	c.state.Filter = compare.FilterAll
	c.state.Step = StepResults
	return result, nil
}

// SetFilter 切换结果筛选
func (c *Controller) SetFilter(f compare.Filter) error {
	parsed, err := compare.ParseFilter(string(f))
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Filter = parsed
	return nil
}

// Visible 当前筛选下的分组
func (c *Controller) Visible() []*compare.Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibleLocked()
}

func (c *Controller) visibleLocked() []*compare.Group {
	if c.state.Result == nil {
		return nil
	}
	return compare.FilterGroups(c.state.Result, c.state.Filter)
}

// Edit 修改某人员在某 sheet 中的字段值，派生数据随之重算
func (c *Controller) Edit(key, sheet, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := compare.EditField(c.state.Result, key, sheet, field, value)
	if err != nil {
		return err
	}
	c.state.Result = next
	return nil
}

// Export 按当前筛选导出。xlsx 在没有对比结果时仍导出各 sheet 的数据。
func (c *Controller) Export(mode export.Mode) (export.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Results == nil {
		return export.File{}, apperr.Validation("没有可导出的数据")
	}
	file, err := export.Render(export.Request{
		Mode:   mode,
		Label:  c.label,
		Result: c.state.Result,
		Groups: c.visibleLocked(),
		Sheets: c.state.Results,
		Now:    c.now(),
	})
	if err != nil {
		return export.File{}, err
	}
	if c.state.Result != nil {
		c.state.Step = StepResults
	}
	return file, nil
}

// ForgetMapping 删除当前文件的映射缓存
func (c *Controller) ForgetMapping(ctx context.Context) error {
	c.mu.Lock()
	info := c.state.Upload
	c.mu.Unlock()
	if c.cache == nil || info == nil {
		return nil
	}
	return c.cache.DeleteMapping(ctx, info.Fingerprint)
}

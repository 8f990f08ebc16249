// Package service 提供上传、预览、列发现、抽取与对比的进程内实现。
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/matcher"
	"github.com/peter-zx/xuwei-data/internal/metrics"
	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/store"
	"github.com/peter-zx/xuwei-data/internal/workbook"
)

// 默认值
const (
	DefaultMaxUploadBytes = 16 << 20
	DefaultUploadTTL      = 2 * time.Hour
	DefaultWorkers        = 4
	DefaultExportLabel    = "数据整理结果"
)

// RunStore 分析记录与映射缓存的持久化
type RunStore interface {
	CreateRun(ctx context.Context, run store.AnalysisRun) error
	ListRuns(ctx context.Context, limit int) ([]store.AnalysisRun, error)
	CountRuns(ctx context.Context) (map[string]int, error)
}

// Service 进程内后端
type Service struct {
	uploads  *uploadRegistry
	matcher  *matcher.Matcher
	runs     RunStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
	maxBytes int64
	exts     []string
	workers  int
	identity model.Identity
	ttl      time.Duration
	now      func() time.Time
}

// Option 服务选项
type Option func(*Service)

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRunStore 记录每次分析
func WithRunStore(runs RunStore) Option {
	return func(s *Service) {
		s.runs = runs
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMatcher 设置表头匹配器
func WithMatcher(m *matcher.Matcher) Option {
	return func(s *Service) {
		s.matcher = m
	}
}

// WithMaxUploadBytes 上传大小上限
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithAllowedExtensions 允许的扩展名（含点，如 .xlsx）
func WithAllowedExtensions(exts []string) Option {
	return func(s *Service) {
		if len(exts) > 0 {
			s.exts = exts
		}
	}
}

// WithWorkers 并行抽取的 Sheet 数
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithIdentity 对比使用的人员标识口径
func WithIdentity(id model.Identity) Option {
	return func(s *Service) {
		s.identity = id
	}
}

// WithUploadTTL 上传文件保留时长
func WithUploadTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New 创建服务
func New(opts ...Option) *Service {
	s := &Service{
		maxBytes: DefaultMaxUploadBytes,
		exts:     []string{".xlsx", ".xls"},
		workers:  DefaultWorkers,
		identity: model.IdentityCertificateNo,
		ttl:      DefaultUploadTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.matcher == nil {
		s.matcher = matcher.New()
	}
	s.uploads = newUploadRegistry(s.ttl)
	return s
}

// Close 释放全部上传文件
func (s *Service) Close() error {
	s.uploads.closeAll()
	s.reportUploads()
	return nil
}

func (s *Service) allowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range s.exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Upload 校验并加载工作簿
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (model.UploadInfo, error) {
	info, err := s.upload(ctx, filename, r)
	if s.metrics != nil {
		s.metrics.IncUpload(err == nil)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "upload rejected", "filename", filename, "error", err)
		return model.UploadInfo{}, err
	}
	s.logger.InfoContext(ctx, "workbook uploaded",
		"file_id", info.FileID, "filename", info.Filename, "size", info.Size, "sheets", info.SheetCount)
	return info, nil
}

func (s *Service) upload(ctx context.Context, filename string, r io.Reader) (model.UploadInfo, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return model.UploadInfo{}, apperr.Validation("未选择文件")
	}
	if !s.allowed(filename) {
		return model.UploadInfo{}, apperr.Validation("只支持 %s 文件格式", strings.Join(s.exts, " 和 "))
	}
	if err := ctx.Err(); err != nil {
		return model.UploadInfo{}, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return model.UploadInfo{}, apperr.Wrap(err, "读取上传文件失败")
	}
	if int64(len(data)) > s.maxBytes {
		return model.UploadInfo{}, apperr.Validation("文件大小超过 %dMB 限制", s.maxBytes>>20)
	}
	if len(data) == 0 {
		return model.UploadInfo{}, apperr.Validation("文件为空")
	}

	wb, err := workbook.Open(bytes.NewReader(data))
	if err != nil {
		return model.UploadInfo{}, err
	}
	sheets, err := wb.Sheets()
	if err != nil {
		_ = wb.Close()
		return model.UploadInfo{}, apperr.Wrap(err, "读取工作表失败")
	}

	info := model.UploadInfo{
		FileID:     uuid.New().String(),
		Filename:   filename,
		Size:       int64(len(data)),
		Sheets:     sheets,
		SheetCount: len(sheets),
	}
	info.Fingerprint = model.Fingerprint(info.Filename, info.Size, info.SheetCount)

	s.uploads.put(info, wb)
	s.reportUploads()
	return info, nil
}

func (s *Service) reportUploads() {
	if s.metrics != nil {
		s.metrics.SetActiveUploads(s.uploads.count())
	}
}

func (s *Service) lookup(fileID string) (*upload, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, apperr.Validation("缺少 file_id")
	}
	u, ok := s.uploads.get(fileID)
	if !ok {
		return nil, apperr.NotFound("文件不存在或已过期: %s", fileID)
	}
	return u, nil
}

// Info 返回已上传文件的信息
func (s *Service) Info(_ context.Context, fileID string) (model.UploadInfo, error) {
	u, err := s.lookup(fileID)
	if err != nil {
		return model.UploadInfo{}, err
	}
	return u.info, nil
}

// Discard 移除已上传文件
func (s *Service) Discard(_ context.Context, fileID string) error {
	if !s.uploads.remove(fileID) {
		return apperr.NotFound("文件不存在或已过期: %s", fileID)
	}
	s.reportUploads()
	return nil
}

// Preview 返回 sheet 前 maxRows 行原始数据
func (s *Service) Preview(_ context.Context, fileID, sheet string, maxRows int) ([][]string, error) {
	u, err := s.lookup(fileID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sheet) == "" {
		return nil, apperr.Validation("缺少 sheet_name")
	}
	return u.wb.Preview(sheet, maxRows)
}

// Columns 返回表头行下的可选列及推荐映射
func (s *Service) Columns(_ context.Context, fileID, sheet string, headerRow int) (model.ColumnsInfo, error) {
	u, err := s.lookup(fileID)
	if err != nil {
		return model.ColumnsInfo{}, err
	}
	if strings.TrimSpace(sheet) == "" {
		return model.ColumnsInfo{}, apperr.Validation("缺少 sheet_name")
	}
	cols, err := u.wb.Columns(sheet, headerRow)
	if err != nil {
		return model.ColumnsInfo{}, err
	}
	return model.ColumnsInfo{
		Columns:   cols,
		Suggested: s.matcher.Suggest(sheet, cols),
	}, nil
}

// Status 服务状态
type Status struct {
	Uploads    int                 `json:"uploads"`
	RunCounts  map[string]int      `json:"run_counts,omitempty"`
	RecentRuns []store.AnalysisRun `json:"recent_runs,omitempty"`
}

// Status 返回当前上传数与最近的分析记录
func (s *Service) Status(ctx context.Context) (Status, error) {
	st := Status{Uploads: s.uploads.count()}
	if s.runs == nil {
		return st, nil
	}
	counts, err := s.runs.CountRuns(ctx)
	if err != nil {
		return st, fmt.Errorf("count runs: %w", err)
	}
	recent, err := s.runs.ListRuns(ctx, 10)
	if err != nil {
		return st, fmt.Errorf("list runs: %w", err)
	}
	st.RunCounts = counts
	st.RecentRuns = recent
	return st, nil
}

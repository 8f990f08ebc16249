// Package api 提供 HTTP 接口
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/service"
)

// MappingCache 映射缓存
type MappingCache interface {
	LoadMapping(ctx context.Context, fingerprint string) (model.MappingConfig, bool, error)
	SaveMapping(ctx context.Context, fingerprint string, mappings model.MappingConfig) error
	DeleteMapping(ctx context.Context, fingerprint string) error
	ClearMappings(ctx context.Context) error
}

// Handler API 处理器
type Handler struct {
	svc         *service.Service
	cache       MappingCache
	downloads   *downloadStore
	logger      *slog.Logger
	label       string
	downloadTTL time.Duration
}

// Option 处理器选项
type Option func(*Handler)

// WithMappingCache 启用 /mapping-cache 接口
func WithMappingCache(cache MappingCache) Option {
	return func(h *Handler) {
		h.cache = cache
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithExportLabel 导出文件名前缀
func WithExportLabel(label string) Option {
	return func(h *Handler) {
		if label != "" {
			h.label = label
		}
	}
}

// WithDownloadTTL 一次性下载链接的有效期
func WithDownloadTTL(ttl time.Duration) Option {
	return func(h *Handler) {
		if ttl > 0 {
			h.downloadTTL = ttl
		}
	}
}

// NewHandler 创建 API 处理器
func NewHandler(svc *service.Service, opts ...Option) *Handler {
	h := &Handler{
		svc:         svc,
		label:       service.DefaultExportLabel,
		downloadTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h.downloads = newDownloadStore(h.downloadTTL)
	return h
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.GetStatus)

	// 上传与映射
	router.POST("/upload", h.Upload)
	router.GET("/upload/:file_id", h.GetUpload)
	router.DELETE("/upload/:file_id", h.DiscardUpload)
	router.POST("/sheet-preview", h.SheetPreview)
	router.POST("/columns", h.Columns)

	// 抽取与对比
	router.POST("/analyze", h.Analyze)
	router.POST("/compare", h.Compare)

	// 导出
	router.POST("/export", h.Export)
	router.POST("/export/prepare", h.PrepareExport)
	router.GET("/export/download/:token", h.DownloadExport)

	if h.cache != nil {
		router.GET("/mapping-cache/:fingerprint", h.GetMapping)
		router.PUT("/mapping-cache/:fingerprint", h.PutMapping)
		router.DELETE("/mapping-cache/:fingerprint", h.DeleteMapping)
		router.DELETE("/mapping-cache", h.ClearMappings)
	}
}

// fail 以统一格式返回错误，状态码由错误码决定
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    apperr.CodeOf(err),
	})
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, apperr.WithCode(apperr.CodeValidation, err, "请求参数无效"))
		return false
	}
	return true
}

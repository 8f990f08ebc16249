package api

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/export"
	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/service"
)

type exportRequest struct {
	FileID   string              `json:"file_id" binding:"required"`
	Mappings model.MappingConfig `json:"mappings" binding:"required"`
	Mode     string              `json:"mode"`
	Filter   string              `json:"filter"`
	Label    string              `json:"label"`
}

func (h *Handler) render(c *gin.Context) (export.File, bool) {
	var req exportRequest
	if !h.bind(c, &req) {
		return export.File{}, false
	}
	mode, ok := export.ParseMode(req.Mode)
	if !ok {
		h.fail(c, apperr.Validation("未知的导出格式: %s", req.Mode))
		return export.File{}, false
	}
	filter, err := compare.ParseFilter(req.Filter)
	if err != nil {
		h.fail(c, err)
		return export.File{}, false
	}
	label := req.Label
	if label == "" {
		label = h.label
	}

	file, err := h.svc.Export(c.Request.Context(), service.ExportRequest{
		FileID:   req.FileID,
		Mappings: req.Mappings,
		Mode:     mode,
		Filter:   filter,
		Label:    label,
	})
	if err != nil {
		h.fail(c, err)
		return export.File{}, false
	}
	return file, true
}

// Export 直接返回导出文件
// POST /api/export
func (h *Handler) Export(c *gin.Context) {
	file, ok := h.render(c)
	if !ok {
		return
	}
	sendFile(c, file)
}

// PrepareExport 生成导出文件并返回一次性下载地址
// POST /api/export/prepare
func (h *Handler) PrepareExport(c *gin.Context) {
	file, ok := h.render(c)
	if !ok {
		return
	}
	token := h.downloads.put(file)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"filename":   file.Name,
		"url":        "/api/export/download/" + token,
		"expires_in": int(h.downloadTTL.Seconds()),
	})
}

// DownloadExport 下载已生成的文件（一次性）
// GET /api/export/download/:token
func (h *Handler) DownloadExport(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		h.fail(c, apperr.Validation("缺少 token"))
		return
	}
	file, ok := h.downloads.take(token)
	if !ok {
		h.fail(c, apperr.NotFound("下载链接已失效"))
		return
	}
	sendFile(c, file)
}

func sendFile(c *gin.Context, file export.File) {
	c.Header("Content-Disposition", contentDisposition(file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// contentDisposition 非 ASCII 文件名通过 filename* 传递，filename 为兼容旧客户端的 ASCII 名
func contentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=\"export%s\"; filename*=UTF-8''%s",
		filepath.Ext(name), url.PathEscape(name))
}

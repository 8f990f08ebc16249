package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/workbook"
)

type uploadResponse struct {
	Success bool `json:"success"`
	model.UploadInfo
}

// Upload 上传工作簿
// POST /api/upload
func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		h.fail(c, apperr.Validation("未找到上传文件"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, apperr.Wrap(err, "读取上传文件失败"))
		return
	}
	defer f.Close()

	info, err := h.svc.Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{Success: true, UploadInfo: info})
}

// GetUpload 查询已上传的工作簿
// GET /api/upload/:file_id
func (h *Handler) GetUpload(c *gin.Context) {
	info, err := h.svc.Info(c.Request.Context(), c.Param("file_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{Success: true, UploadInfo: info})
}

// DiscardUpload 释放已上传的工作簿
// DELETE /api/upload/:file_id
func (h *Handler) DiscardUpload(c *gin.Context) {
	if err := h.svc.Discard(c.Request.Context(), c.Param("file_id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type previewRequest struct {
	FileID    string `json:"file_id" binding:"required"`
	SheetName string `json:"sheet_name" binding:"required"`
	MaxRows   int    `json:"max_rows"`
}

// SheetPreview 预览 sheet 前几行
// POST /api/sheet-preview
func (h *Handler) SheetPreview(c *gin.Context) {
	var req previewRequest
	if !h.bind(c, &req) {
		return
	}
	if req.MaxRows <= 0 {
		req.MaxRows = workbook.DefaultPreviewRows
	}

	rows, err := h.svc.Preview(c.Request.Context(), req.FileID, req.SheetName, req.MaxRows)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     rows,
		"max_rows": req.MaxRows,
	})
}

type columnsRequest struct {
	FileID    string `json:"file_id" binding:"required"`
	SheetName string `json:"sheet_name" binding:"required"`
	HeaderRow int    `json:"header_row"`
}

// Columns 获取表头列名与推荐映射
// POST /api/columns
func (h *Handler) Columns(c *gin.Context) {
	var req columnsRequest
	if !h.bind(c, &req) {
		return
	}

	info, err := h.svc.Columns(c.Request.Context(), req.FileID, req.SheetName, req.HeaderRow)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"columns":   info.Columns,
		"suggested": info.Suggested,
	})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/model"
)

// GetMapping 读取文件指纹对应的映射
// GET /api/mapping-cache/:fingerprint
func (h *Handler) GetMapping(c *gin.Context) {
	fp := c.Param("fingerprint")
	mappings, ok, err := h.cache.LoadMapping(c.Request.Context(), fp)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		h.fail(c, apperr.NotFound("没有缓存的映射: %s", fp))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"fingerprint": fp,
		"mappings":    mappings,
	})
}

type putMappingRequest struct {
	Mappings model.MappingConfig `json:"mappings" binding:"required"`
}

// PutMapping 保存映射
// PUT /api/mapping-cache/:fingerprint
func (h *Handler) PutMapping(c *gin.Context) {
	var req putMappingRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.cache.SaveMapping(c.Request.Context(), c.Param("fingerprint"), req.Mappings.Clean()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteMapping 删除映射
// DELETE /api/mapping-cache/:fingerprint
func (h *Handler) DeleteMapping(c *gin.Context) {
	if err := h.cache.DeleteMapping(c.Request.Context(), c.Param("fingerprint")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ClearMappings 清空映射缓存
// DELETE /api/mapping-cache
func (h *Handler) ClearMappings(c *gin.Context) {
	if err := h.cache.ClearMappings(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/model"
)

type analyzeRequest struct {
	FileID   string              `json:"file_id" binding:"required"`
	Mappings model.MappingConfig `json:"mappings" binding:"required"`
}

// Analyze 按映射抽取所有 sheet；单个 sheet 失败记录在其结果中
// POST /api/analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if !h.bind(c, &req) {
		return
	}

	results, err := h.svc.Analyze(c.Request.Context(), req.FileID, req.Mappings)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": results,
	})
}

type compareRequest struct {
	FileID   string              `json:"file_id" binding:"required"`
	Mappings model.MappingConfig `json:"mappings" binding:"required"`
	Filter   string              `json:"filter"`
}

// Compare 抽取并对比；groups 按 filter 筛选，stats 始终为全部分组的统计
// POST /api/compare
func (h *Handler) Compare(c *gin.Context) {
	var req compareRequest
	if !h.bind(c, &req) {
		return
	}
	filter, err := compare.ParseFilter(req.Filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.svc.Compare(c.Request.Context(), req.FileID, req.Mappings)
	if err != nil {
		h.fail(c, err)
		return
	}
	view := *result
	view.Groups = compare.FilterGroups(result, filter)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  view,
	})
}

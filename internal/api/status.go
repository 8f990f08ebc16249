package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peter-zx/xuwei-data/internal/service"
)

type statusResponse struct {
	Success bool `json:"success"`
	service.Status
}

// GetStatus 获取服务状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Success: true, Status: st})
}

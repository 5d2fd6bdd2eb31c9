package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/pkg/component/storage"
)

// HealthHandler 存活与就绪探针。
type HealthHandler struct {
	storages *storage.Manager
	timeout  time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(storages *storage.Manager) *HealthHandler {
	return &HealthHandler{storages: storages, timeout: 3 * time.Second}
}

// Live 进程存活即返回 200。
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready 所有后端可用时返回 200，否则返回 503 与各后端状态。
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	statuses := h.storages.HealthCheckAll(ctx)
	code, status := http.StatusOK, "ok"
	for _, s := range statuses {
		if !s.Healthy {
			code, status = http.StatusServiceUnavailable, "unavailable"
			break
		}
	}
	c.JSON(code, gin.H{"status": status, "checks": statuses})
}

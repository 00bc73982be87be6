package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/review-feed/internal/realtime"
)

// Pinger reports store reachability.
type Pinger func(ctx context.Context) error

// HealthHandler 健康检查
type HealthHandler struct {
	ping Pinger
	hub  *realtime.Hub
}

func NewHealthHandler(ping Pinger, hub *realtime.Hub) *HealthHandler {
	return &HealthHandler{ping: ping, hub: hub}
}

// Health
// @Summary 健康检查
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok", "database": "ok"}
	status := 200
	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			status = 503
		}
	}
	if h.hub != nil {
		body["realtime"] = h.hub.Stats()
	}
	c.JSON(status, body)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/service"
)

type HealthHandler struct {
	health *service.HealthService
}

func NewHealthHandler(health *service.HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

// Check responds 200 with per-component states, or 503 when any
// dependency fails its probe. Probes return plain JSON, not the api
// envelope.
func (h *HealthHandler) Check(c *gin.Context) {
	status := h.health.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

package handler

import (
	"net/http"
	"time"

	"hexanote-sync-server/internal/service"
	"hexanote-sync-server/pkg/response"
)

type HealthHandler struct {
	started  time.Time
	registry service.Registry
}

func NewHealthHandler(registry service.Registry) *HealthHandler {
	return &HealthHandler{started: time.Now(), registry: registry}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]interface{}{
		"status":            "ok",
		"uptime_seconds":    int64(time.Since(h.started).Seconds()),
		"connected_devices": len(h.registry.ConnectedDevices()),
	})
}

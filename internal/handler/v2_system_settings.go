package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autotrader/internal/repository"
	"autotrader/internal/service"
)

type SystemSettingsHandler struct {
	Repo     repository.Repository
	Settings *service.SystemSettingsService
	Logger   *zap.Logger
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	r.GET("/api/v2/system/settings", h.list)
	r.PUT("/api/v2/system/settings/:key", h.set)
}

func (h *SystemSettingsHandler) list(c *gin.Context) {
	items, err := h.Repo.ListSystemSettings(c.Request.Context())
	if err != nil {
		h.Logger.Warn("list system settings failed", zap.Error(err))
		Error(c, 500, "failed to list system settings", nil)
		return
	}
	Ok(c, items, nil)
}

type setSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *SystemSettingsHandler) set(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "missing setting key", nil)
		return
	}
	var req setSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, req.Enabled); err != nil {
		h.Logger.Warn("set system setting failed", zap.String("key", key), zap.Error(err))
		Error(c, 500, "failed to update setting", nil)
		return
	}
	h.Logger.Info("system setting updated", zap.String("key", key), zap.Bool("enabled", req.Enabled))
	Ok(c, gin.H{"key": key, "enabled": req.Enabled}, nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autotrader/internal/repository"
)

type ModelsHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *ModelsHandler) Register(r *gin.Engine) {
	r.GET("/api/v2/models", h.list)
	r.POST("/api/v2/models/:id/activate", h.activate)
}

func (h *ModelsHandler) list(c *gin.Context) {
	params := repository.ListModelArtifactsParams{
		Symbol: strQueryPtr(c, "symbol"),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if c.Query("active") == "true" {
		params.Active = boolPtr(true)
	}
	items, err := h.Repo.ListModelArtifacts(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("list model artifacts failed", zap.Error(err))
		Error(c, 500, "failed to list models", nil)
		return
	}
	Ok(c, items, nil)
}

// activate swaps the active artifact for the symbol to the given id.
// Entry scoring picks up the new artifact on the next cycle.
func (h *ModelsHandler) activate(c *gin.Context) {
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid model id", nil)
		return
	}
	item, err := h.Repo.GetModelArtifactByID(c.Request.Context(), id)
	if err != nil {
		h.Logger.Warn("load model artifact failed", zap.Error(err))
		Error(c, 500, "failed to load model", nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "model not found", nil)
		return
	}
	if err := h.Repo.ActivateModelArtifact(c.Request.Context(), id); err != nil {
		h.Logger.Warn("activate model artifact failed", zap.Uint64("id", id), zap.Error(err))
		Error(c, 500, "failed to activate model", nil)
		return
	}
	h.Logger.Info("model artifact activated",
		zap.Uint64("id", id),
		zap.String("symbol", item.Symbol),
		zap.Int("version", item.Version),
	)
	Ok(c, gin.H{"id": id, "symbol": item.Symbol, "version": item.Version}, nil)
}

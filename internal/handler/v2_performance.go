package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autotrader/internal/repository"
)

type PerformanceHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *PerformanceHandler) Register(r *gin.Engine) {
	r.GET("/api/v2/performance", h.list)
}

func (h *PerformanceHandler) list(c *gin.Context) {
	params := repository.ListPerformanceSnapshotsParams{
		Symbol: strQueryPtr(c, "symbol"),
		Since:  timeQueryPtr(c, "since"),
		Limit:  intQuery(c, "limit", 100),
		Offset: intQuery(c, "offset", 0),
	}
	items, err := h.Repo.ListPerformanceSnapshots(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("list performance snapshots failed", zap.Error(err))
		Error(c, 500, "failed to list performance snapshots", nil)
		return
	}
	Ok(c, items, nil)
}

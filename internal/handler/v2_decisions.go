package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autotrader/internal/repository"
)

type DecisionsHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *DecisionsHandler) Register(r *gin.Engine) {
	r.GET("/api/v2/decisions", h.list)
}

func (h *DecisionsHandler) list(c *gin.Context) {
	params := repository.ListDecisionLogsParams{
		Symbol: strQueryPtr(c, "symbol"),
		Action: strQueryPtr(c, "action"),
		Since:  timeQueryPtr(c, "since"),
		Limit:  intQuery(c, "limit", 100),
		Offset: intQuery(c, "offset", 0),
	}
	items, err := h.Repo.ListDecisionLogs(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("list decisions failed", zap.Error(err))
		Error(c, 500, "failed to list decisions", nil)
		return
	}
	Ok(c, items, nil)
}

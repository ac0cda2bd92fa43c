package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autotrader/internal/repository"
)

type TradesHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *TradesHandler) Register(r *gin.Engine) {
	r.GET("/api/v2/trades", h.list)
}

var tradeOrderColumns = map[string]string{
	"executed_at": "executed_at",
	"symbol":      "symbol",
	"confidence":  "confidence",
}

func (h *TradesHandler) list(c *gin.Context) {
	params := repository.ListTradeRecordsParams{
		Symbol:  strQueryPtr(c, "symbol"),
		Outcome: strQueryPtr(c, "outcome"),
		Side:    strQueryPtr(c, "side"),
		Since:   timeQueryPtr(c, "since"),
		Until:   timeQueryPtr(c, "until"),
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
		OrderBy: parseOrder(c.Query("order_by"), tradeOrderColumns),
	}
	if c.Query("asc") == "true" {
		params.Asc = boolPtr(true)
	}

	items, err := h.Repo.ListTradeRecords(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("list trades failed", zap.Error(err))
		Error(c, 500, "failed to list trades", nil)
		return
	}
	total, err := h.Repo.CountTradeRecords(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("count trades failed", zap.Error(err))
		Error(c, 500, "failed to count trades", nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

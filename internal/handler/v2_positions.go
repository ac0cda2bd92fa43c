package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autotrader/internal/repository"
)

type PositionsHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *PositionsHandler) Register(r *gin.Engine) {
	r.GET("/api/v2/positions", h.list)
	r.GET("/api/v2/positions/summary", h.summary)
	r.GET("/api/v2/portfolio/history", h.portfolioHistory)
}

var positionOrderColumns = map[string]string{
	"opened_at": "opened_at",
	"closed_at": "closed_at",
	"symbol":    "symbol",
}

func (h *PositionsHandler) list(c *gin.Context) {
	params := repository.ListPositionsParams{
		Symbol:  strQueryPtr(c, "symbol"),
		Status:  strQueryPtr(c, "status"),
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
		OrderBy: parseOrder(c.Query("order_by"), positionOrderColumns),
	}
	if c.Query("asc") == "true" {
		params.Asc = boolPtr(true)
	}

	items, err := h.Repo.ListPositions(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("list positions failed", zap.Error(err))
		Error(c, 500, "failed to list positions", nil)
		return
	}
	total, err := h.Repo.CountPositions(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("count positions failed", zap.Error(err))
		Error(c, 500, "failed to count positions", nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

func (h *PositionsHandler) summary(c *gin.Context) {
	summary, err := h.Repo.PositionsSummary(c.Request.Context())
	if err != nil {
		h.Logger.Warn("positions summary failed", zap.Error(err))
		Error(c, 500, "failed to summarize positions", nil)
		return
	}
	Ok(c, summary, nil)
}

func (h *PositionsHandler) portfolioHistory(c *gin.Context) {
	params := repository.ListPortfolioSnapshotsParams{
		Since:  timeQueryPtr(c, "since"),
		Until:  timeQueryPtr(c, "until"),
		Limit:  intQuery(c, "limit", 168),
		Offset: intQuery(c, "offset", 0),
	}
	items, err := h.Repo.ListPortfolioSnapshots(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("list portfolio snapshots failed", zap.Error(err))
		Error(c, 500, "failed to list portfolio history", nil)
		return
	}
	Ok(c, items, nil)
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autotrader/internal/repository"
)

type InstructionsHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *InstructionsHandler) Register(r *gin.Engine) {
	r.GET("/api/v2/instructions", h.list)
	r.POST("/api/v2/instructions/:id/ack", h.ack)
}

func (h *InstructionsHandler) list(c *gin.Context) {
	params := repository.ListTradeInstructionsParams{
		Symbol: strQueryPtr(c, "symbol"),
		Status: strQueryPtr(c, "status"),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	items, err := h.Repo.ListTradeInstructions(c.Request.Context(), params)
	if err != nil {
		h.Logger.Warn("list instructions failed", zap.Error(err))
		Error(c, 500, "failed to list instructions", nil)
		return
	}
	Ok(c, items, nil)
}

// ack marks a queued manual instruction as handled by an operator.
func (h *InstructionsHandler) ack(c *gin.Context) {
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid instruction id", nil)
		return
	}
	item, err := h.Repo.GetTradeInstructionByID(c.Request.Context(), id)
	if err != nil {
		h.Logger.Warn("load instruction failed", zap.Error(err))
		Error(c, 500, "failed to load instruction", nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "instruction not found", nil)
		return
	}
	if item.Status != "queued" {
		Error(c, http.StatusConflict, "instruction is not queued", map[string]any{"status": item.Status})
		return
	}
	if err := h.Repo.AckTradeInstruction(c.Request.Context(), id, time.Now().UTC()); err != nil {
		h.Logger.Warn("ack instruction failed", zap.Uint64("id", id), zap.Error(err))
		Error(c, 500, "failed to ack instruction", nil)
		return
	}
	Ok(c, gin.H{"id": id, "status": "acked"}, nil)
}

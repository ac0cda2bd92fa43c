package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// apiResponse is the envelope for every trading API reply. GeneratedAt lets
// dashboards tell a stale poll from a fresh one without trusting clocks on
// the payload rows.
type apiResponse struct {
	Code        int            `json:"code"`
	Message     string         `json:"message"`
	GeneratedAt time.Time      `json:"generated_at"`
	Data        any            `json:"data,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:        0,
		Message:     "ok",
		GeneratedAt: time.Now().UTC(),
		Data:        data,
		Meta:        meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:        status,
		Message:     message,
		GeneratedAt: time.Now().UTC(),
		Meta:        meta,
	})
}

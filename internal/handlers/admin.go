package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gatherly/internal/models"
)

// ListOutbox - GET /api/outbox
// Список событий outbox, опционально по статусу
func (h *Handlers) ListOutbox(c *gin.Context) {
	limit, ok := limitQuery(c)
	if !ok {
		return
	}
	status := models.OutboxStatus(c.Query("status"))
	switch status {
	case "", models.OutboxPending, models.OutboxProcessing, models.OutboxSent, models.OutboxFailed:
	default:
		badRequest(c, "unknown outbox status")
		return
	}

	events, err := h.service.ListOutbox(c.Request.Context(), actor(c), status, limit)
	if err != nil {
		respondError(c, "list outbox", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// FailedOutbox - GET /api/outbox/failed
// События, исчерпавшие попытки доставки
func (h *Handlers) FailedOutbox(c *gin.Context) {
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	events, err := h.service.FailedOutbox(c.Request.Context(), actor(c), limit)
	if err != nil {
		respondError(c, "failed outbox", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ProcessOutbox - POST /api/outbox/process
// Ручной запуск доставки
func (h *Handlers) ProcessOutbox(c *gin.Context) {
	var req models.ProcessOutboxRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	results, err := h.service.ProcessOutbox(c.Request.Context(), actor(c), req.Limit)
	if err != nil {
		respondError(c, "process outbox", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

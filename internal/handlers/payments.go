package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"gatherly/internal/models"
)

// HeaderGatewaySignature carries the gateway's webhook signature.
const HeaderGatewaySignature = "X-Gateway-Signature"

const maxWebhookBody = 1 << 20

// Purchase - POST /api/tickets/:ticketId/purchase
// Купить билеты; 202 если платеж отправлен на проверку
func (h *Handlers) Purchase(c *gin.Context) {
	ticketID, ok := idParam(c, "ticketId")
	if !ok {
		return
	}
	var req models.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.service.Purchase(c.Request.Context(), actor(c), ticketID, req)
	if err != nil {
		respondError(c, "purchase", err)
		return
	}

	status := http.StatusCreated
	if resp.ReviewRequired {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

// RefundPreview - GET /api/payments/:id/refund-preview
// Рассчитать сумму возврата без его проведения
func (h *Handlers) RefundPreview(c *gin.Context) {
	paymentID, ok := idParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.RefundPreview(c.Request.Context(), actor(c), paymentID)
	if err != nil {
		respondError(c, "refund preview", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refund - POST /api/payments/:id/refund
// Провести возврат по политике билета
func (h *Handlers) Refund(c *gin.Context) {
	paymentID, ok := idParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.Refund(c.Request.Context(), actor(c), paymentID)
	if err != nil {
		respondError(c, "refund", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// FlaggedPayments - GET /api/payments/flagged
// Платежи со средним и высоким риском
func (h *Handlers) FlaggedPayments(c *gin.Context) {
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	payments, err := h.service.ListFlaggedPayments(c.Request.Context(), actor(c), limit)
	if err != nil {
		respondError(c, "flagged payments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// GatewayWebhook - POST /api/webhooks/payments
// Принимать подписанные уведомления от платежного шлюза
func (h *Handlers) GatewayWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}

	if err := h.service.HandleGatewayEvent(c.Request.Context(), payload, c.GetHeader(HeaderGatewaySignature)); err != nil {
		respondError(c, "gateway webhook", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

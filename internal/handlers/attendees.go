package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gatherly/internal/models"
)

// Register - POST /api/events/:eventId/attendees
// Зарегистрироваться на мероприятие или встать в лист ожидания
func (h *Handlers) Register(c *gin.Context) {
	eventID, ok := idParam(c, "eventId")
	if !ok {
		return
	}
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.service.Register(c.Request.Context(), actor(c), eventID, req.TicketID)
	if err != nil {
		respondError(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListAttendees - GET /api/events/:eventId/attendees
// Список участников, опционально по типу билета
func (h *Handlers) ListAttendees(c *gin.Context) {
	eventID, ok := idParam(c, "eventId")
	if !ok {
		return
	}
	var ticketID int64
	if raw := c.Query("ticket_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "ticket_id must be a positive integer")
			return
		}
		ticketID = id
	}

	attendees, err := h.service.ListAttendees(c.Request.Context(), actor(c), eventID, ticketID)
	if err != nil {
		respondError(c, "list attendees", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendees": attendees})
}

// RemoveAttendee - DELETE /api/events/:eventId/attendees/:attendeeId
// Удалить участника; освободившееся место уходит листу ожидания
func (h *Handlers) RemoveAttendee(c *gin.Context) {
	eventID, ok := idParam(c, "eventId")
	if !ok {
		return
	}
	attendeeID, ok := idParam(c, "attendeeId")
	if !ok {
		return
	}

	if err := h.service.RemoveAttendee(c.Request.Context(), actor(c), eventID, attendeeID); err != nil {
		respondError(c, "remove attendee", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ScanCheckIn - POST /api/events/:eventId/attendees/scan/checkin
// Отметить вход по QR-токену
func (h *Handlers) ScanCheckIn(c *gin.Context) {
	eventID, ok := idParam(c, "eventId")
	if !ok {
		return
	}
	var req models.ScanCheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	attendee, err := h.service.ScanCheckIn(c.Request.Context(), actor(c), eventID, req.Token)
	if err != nil {
		respondError(c, "scan checkin", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendee": attendee})
}

// CheckInToken - GET /api/attendees/:attendeeId/checkin-token
// Выдать токен для входа
func (h *Handlers) CheckInToken(c *gin.Context) {
	attendeeID, ok := idParam(c, "attendeeId")
	if !ok {
		return
	}

	resp, err := h.service.IssueCheckInToken(c.Request.Context(), actor(c), attendeeID)
	if err != nil {
		respondError(c, "checkin token", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ClaimOffer - POST /api/waitlist/claim
// Подтвердить место, предложенное из листа ожидания
func (h *Handlers) ClaimOffer(c *gin.Context) {
	var req models.ClaimOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.service.ClaimOffer(c.Request.Context(), actor(c), req.Token)
	if err != nil {
		respondError(c, "claim offer", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

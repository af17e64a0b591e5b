package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "gatherly/internal/errors"
	"gatherly/internal/logger"
	"gatherly/internal/middleware"
	"gatherly/internal/models"
)

// Service is the fulfillment API the handlers expose.
type Service interface {
	Register(ctx context.Context, actor models.Actor, eventID, ticketID int64) (*models.RegisterResponse, error)
	RemoveAttendee(ctx context.Context, actor models.Actor, eventID, attendeeID int64) error
	ListAttendees(ctx context.Context, actor models.Actor, eventID, ticketID int64) ([]models.Attendee, error)
	ClaimOffer(ctx context.Context, actor models.Actor, token string) (*models.ClaimOfferResponse, error)
	IssueCheckInToken(ctx context.Context, actor models.Actor, attendeeID int64) (*models.CheckInTokenResponse, error)
	ScanCheckIn(ctx context.Context, actor models.Actor, eventID int64, token string) (*models.Attendee, error)

	Purchase(ctx context.Context, actor models.Actor, ticketID int64, req models.PurchaseRequest) (*models.PurchaseResponse, error)
	RefundPreview(ctx context.Context, actor models.Actor, paymentID int64) (*models.RefundPreviewResponse, error)
	Refund(ctx context.Context, actor models.Actor, paymentID int64) (*models.RefundResponse, error)
	HandleGatewayEvent(ctx context.Context, payload []byte, signature string) error

	ProcessOutbox(ctx context.Context, actor models.Actor, limit int) ([]models.OutboxResult, error)
	ListOutbox(ctx context.Context, actor models.Actor, status models.OutboxStatus, limit int) ([]models.OutboxEvent, error)
	FailedOutbox(ctx context.Context, actor models.Actor, limit int) ([]models.OutboxEvent, error)
	ListFlaggedPayments(ctx context.Context, actor models.Actor, limit int) ([]models.Payment, error)
}

type Handlers struct {
	service Service
}

func NewHandlers(service Service) *Handlers {
	return &Handlers{service: service}
}

// statusFor переводит класс ошибки в HTTP статус
func statusFor(err error) int {
	if errors.Is(err, apperrors.ErrOfferExpired) {
		return http.StatusConflict
	}
	switch apperrors.KindOf(err) {
	case apperrors.NotFound:
		return http.StatusNotFound
	case apperrors.Forbidden:
		return http.StatusForbidden
	case apperrors.Unauthenticated:
		return http.StatusUnauthorized
	case apperrors.Conflict:
		return http.StatusConflict
	case apperrors.Expired, apperrors.LimitExceeded, apperrors.CapacityExceeded,
		apperrors.PolicyRejected, apperrors.NotEligible, apperrors.InvalidToken, apperrors.Invalid:
		return http.StatusBadRequest
	case apperrors.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError пишет тело {"error","code"}; внутренние ошибки не раскрываются
func respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("Request failed", "op", op, "error", err)
	}

	msg := apperrors.Message(err)
	code := apperrors.KindOf(err).String()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
		code = "internal"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperrors.Invalid.String()})
}

func actor(c *gin.Context) models.Actor {
	a, _ := middleware.ActorFromContext(c.Request.Context())
	return a
}

// idParam разбирает положительный идентификатор из пути
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func limitQuery(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

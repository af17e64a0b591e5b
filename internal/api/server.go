package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatherly/internal/app"
	"gatherly/internal/handlers"
	"gatherly/internal/middleware"
)

const shutdownTimeout = 15 * time.Second

// HealthChecker returns failing dependencies by name.
type HealthChecker func(ctx context.Context) map[string]string

// Server представляет HTTP сервер API
type Server struct {
	router *gin.Engine
	http   *http.Server
}

// NewServer создает сервер поверх собранного приложения
func NewServer(a *app.App) *Server {
	gin.SetMode(a.Config.GinMode)

	router := NewRouter(handlers.NewHandlers(a.Service), a.Registry, a.CheckHealth)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%s", a.Config.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      a.Config.RequestTimeout,
		},
	}
}

// NewRouter настраивает middleware и все API роуты
func NewRouter(h *handlers.Handlers, gatherer prometheus.Gatherer, health HealthChecker) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())

	router.GET("/health", healthCheck(health))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")

	// Уведомления шлюза аутентифицируются подписью, а не пользователем
	api.POST("/webhooks/payments", h.GatewayWebhook)

	authed := api.Group("")
	authed.Use(middleware.Identity())
	{
		events := authed.Group("/events/:eventId/attendees")
		{
			events.POST("", h.Register)
			events.GET("", h.ListAttendees)
			events.DELETE("/:attendeeId", h.RemoveAttendee)
			events.POST("/scan/checkin", h.ScanCheckIn)
		}

		authed.GET("/attendees/:attendeeId/checkin-token", h.CheckInToken)
		authed.POST("/waitlist/claim", h.ClaimOffer)
		authed.POST("/tickets/:ticketId/purchase", h.Purchase)

		payments := authed.Group("/payments")
		{
			payments.GET("/flagged", h.FlaggedPayments)
			payments.GET("/:id/refund-preview", h.RefundPreview)
			payments.POST("/:id/refund", h.Refund)
		}

		outbox := authed.Group("/outbox")
		{
			outbox.GET("", h.ListOutbox)
			outbox.GET("/failed", h.FailedOutbox)
			outbox.POST("/process", h.ProcessOutbox)
		}
	}

	return router
}

// healthCheck обрабатывает health check запросы
func healthCheck(check HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var failures map[string]string
		if check != nil {
			failures = check(c.Request.Context())
		}
		if len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "degraded",
				"service":  "gatherly-api",
				"failures": failures,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "gatherly-api",
		})
	}
}

// Run обслуживает запросы до отмены ctx, затем корректно завершает работу
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

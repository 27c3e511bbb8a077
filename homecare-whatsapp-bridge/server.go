package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"homecare/lib/clients"
	"homecare/lib/metrics"
	"homecare/lib/models"
	"homecare/lib/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Sender delivers and logs an outbound message.
type Sender interface {
	Send(ctx context.Context, in models.SendMessageInput) (*models.WhatsappChat, error)
}

// StatusSource reports the WhatsApp session state.
type StatusSource interface {
	Status() whatsapp.Status
}

// Server is the bridge HTTP API used by the lambdas and the admin dashboard.
type Server struct {
	Sender  Sender
	Session StatusSource
	APIKey  string
	Metrics *metrics.Metrics
	Logger  *logrus.Logger
}

// Handler builds the gin engine wrapped in CORS for allowedOrigins.
func (s *Server) Handler(allowedOrigins []string, metricsHandler http.Handler) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.observe())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", s.requireAPIKey(), s.handleStatus)
	router.POST("/messages", s.requireAPIKey(), s.handleSend)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", clients.APIKeyHeader},
		AllowCredentials: true,
	}).Handler(router)
}

// observe logs each request and counts it by route template.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		if s.Metrics != nil {
			s.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
		}
		if route == "/metrics" || route == "/healthz" {
			return
		}
		s.Logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"route":       route,
			"status":      code,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("http request")
	}
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(clients.APIKeyHeader)
		if s.APIKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Session.Status())
}

// handleSend handles POST /messages. A delivery failure still answers 201:
// the logged row carries status=failed and the reason.
func (s *Server) handleSend(c *gin.Context) {
	var in models.SendMessageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": gin.H{"body": "must be valid JSON"}})
		return
	}

	chat, err := s.Sender.Send(c.Request.Context(), in)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": verr.Fields})
			return
		}
		s.Logger.WithError(err).WithField("operation", "handleSend").Error("failed to send message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}
	c.JSON(http.StatusCreated, chat)
}

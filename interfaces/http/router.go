package httpiface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"chat-secure-circle/application/history"
	domain "chat-secure-circle/domain/chat"
	"chat-secure-circle/domain/persistence"
	"chat-secure-circle/internal/metrics"
	"chat-secure-circle/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
)

type ChatService interface {
	Handle(ctx context.Context, body []byte, authorization string) domain.Result
}

type HistoryService interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]*persistence.ChatMessage, error)
	Save(ctx context.Context, message *persistence.ChatMessage) error
	SaveAll(ctx context.Context, messages []*persistence.ChatMessage) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// HealthCheck reports a dependency problem as a non-nil error
type HealthCheck func(ctx context.Context) error

type Router struct {
	service     ChatService
	history     HistoryService
	corsOrigins []string
	metrics     *metrics.Metrics
	limiter     *ratelimit.Limiter
	checks      map[string]HealthCheck
}

func NewRouter(service ChatService, corsOrigins []string, m *metrics.Metrics) *Router {
	return &Router{
		service:     service,
		corsOrigins: corsOrigins,
		metrics:     m,
		checks:      make(map[string]HealthCheck),
	}
}

// NewRouterWithPersistence creates a router that also serves chat history
func NewRouterWithPersistence(service ChatService, corsOrigins []string, m *metrics.Metrics, historyService HistoryService, db HealthCheck) *Router {
	r := NewRouter(service, corsOrigins, m)
	r.history = historyService
	if db != nil {
		r.checks["db"] = db
	}
	return r
}

// AddCheck registers a dependency check used by /ready and /health
func (r *Router) AddCheck(name string, check HealthCheck) {
	r.checks[name] = check
}

// SetRateLimiter enables per-client rate limiting on the API routes
func (r *Router) SetRateLimiter(limiter *ratelimit.Limiter) {
	r.limiter = limiter
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	// Health endpoints
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)
	router.GET("/metrics", gin.WrapH(r.metrics.Handler()))

	api := router.Group("/")
	api.Use(r.requestIDMiddleware())
	if r.limiter != nil {
		api.Use(r.rateLimitMiddleware())
	}

	// Same function under the local path and the hosted functions path
	for _, path := range []string{"/gemini-chat", "/functions/v1/gemini-chat"} {
		api.POST(path, r.geminiChat)
		router.OPTIONS(path, r.preflight)
	}

	if r.history != nil {
		api.GET("/messages", r.listMessages)
		api.POST("/messages", r.createMessage)
		api.POST("/messages/batch", r.createMessages)
		api.DELETE("/messages/:id", r.deleteMessage)
		router.OPTIONS("/messages", r.preflight)
		router.OPTIONS("/messages/:id", r.preflight)
	}

	return router
}

// corsMiddleware sets CORS headers on every response and answers preflight requests
// before any body handling.
func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowOrigin := r.allowedOrigin(c.GetHeader("Origin")); allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			if allowOrigin != "*" {
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (r *Router) allowedOrigin(reqOrigin string) string {
	for _, allowed := range r.corsOrigins {
		if allowed == "*" {
			return "*"
		}
	}
	for _, allowed := range r.corsOrigins {
		if reqOrigin != "" && allowed == reqOrigin {
			return reqOrigin
		}
	}
	return ""
}

// preflight is only reached if the CORS middleware is bypassed
func (r *Router) preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (r *Router) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = c.GetHeader("X-Correlation-ID")
		}
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)

		c.Next()
	}
}

func (r *Router) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.limiter.Allow(c.ClientIP()) {
			logrus.WithFields(logrus.Fields{
				"client_ip":  c.ClientIP(),
				"request_id": c.GetString("request_id"),
			}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.ErrorResponse{Error: "Too many requests"})
			return
		}
		c.Next()
	}
}

// geminiChat proxies one chat turn. Every failure maps to 500 {"error": ...}.
func (r *Router) geminiChat(c *gin.Context) {
	start := time.Now()

	var result domain.Result
	body, err := c.GetRawData()
	if err != nil {
		result = domain.Failure(fmt.Errorf("failed to read request body: %w", err))
	} else {
		result = r.service.Handle(c.Request.Context(), body, c.GetHeader("Authorization"))
	}

	r.metrics.ObserveChat(result.OK(), time.Since(start))

	if !result.OK() {
		logrus.WithError(result.Err).WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Error("Gemini chat request failed")
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: result.Err.Error()})
		return
	}

	logrus.WithFields(logrus.Fields{
		"request_id":  c.GetString("request_id"),
		"latency_ms":  time.Since(start).Milliseconds(),
		"reply_chars": len(result.Text),
	}).Info("Gemini chat request served")
	c.JSON(http.StatusOK, domain.ChatResponse{Response: result.Text})
}

// MessageRequest is the body for storing one chat message
type MessageRequest struct {
	ID       string  `json:"id"`
	UserID   string  `json:"user_id" binding:"required"`
	Content  string  `json:"content"`
	ImageURL *string `json:"image_url"`
	IsUser   bool    `json:"is_user"`
}

func (m MessageRequest) toEntity() (*persistence.ChatMessage, error) {
	userID, err := uuid.Parse(m.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user_id", history.ErrInvalidMessage)
	}
	message := &persistence.ChatMessage{
		UserID:   userID,
		Content:  m.Content,
		ImageURL: m.ImageURL,
		IsUser:   m.IsUser,
	}
	if m.ID != "" {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id", history.ErrInvalidMessage)
		}
		message.ID = id
	}
	return message, nil
}

// MessageResponse is a stored message with its display fields
type MessageResponse struct {
	*persistence.ChatMessage
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

func toResponse(message *persistence.ChatMessage) MessageResponse {
	return MessageResponse{
		ChatMessage: message,
		Sender:      message.Sender(),
		Timestamp:   message.CreatedAt.UnixMilli(),
	}
}

func (r *Router) listMessages(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid user_id"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid limit parameter"})
		return
	}

	messages, err := r.history.List(c.Request.Context(), userID, limit)
	if err != nil {
		r.historyError(c, err, "Failed to load messages")
		return
	}

	out := make([]MessageResponse, len(messages))
	for i, message := range messages {
		out[i] = toResponse(message)
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) createMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}

	message, err := req.toEntity()
	if err == nil {
		err = r.history.Save(c.Request.Context(), message)
	}
	if err != nil {
		r.historyError(c, err, "Failed to save message")
		return
	}

	c.JSON(http.StatusCreated, toResponse(message))
}

func (r *Router) createMessages(c *gin.Context) {
	var reqs []MessageRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}

	messages := make([]*persistence.ChatMessage, 0, len(reqs))
	for _, req := range reqs {
		message, err := req.toEntity()
		if err != nil {
			r.historyError(c, err, "Failed to save messages")
			return
		}
		messages = append(messages, message)
	}

	if err := r.history.SaveAll(c.Request.Context(), messages); err != nil {
		r.historyError(c, err, "Failed to save messages")
		return
	}

	out := make([]MessageResponse, len(messages))
	for i, message := range messages {
		out[i] = toResponse(message)
	}
	c.JSON(http.StatusCreated, out)
}

func (r *Router) deleteMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid message id"})
		return
	}

	if err := r.history.Delete(c.Request.Context(), id); err != nil {
		r.historyError(c, err, "Failed to delete message")
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) historyError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, history.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
	case errors.Is(err, persistence.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: "Message not found"})
	case errors.Is(err, persistence.ErrDuplicate):
		c.JSON(http.StatusConflict, domain.ErrorResponse{Error: "Message already exists"})
	default:
		logrus.WithError(err).WithField("request_id", c.GetString("request_id")).Error(msg)
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: msg})
	}
}

func (r *Router) runChecks(ctx context.Context) (gin.H, bool) {
	checks := gin.H{}
	ok := true
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			checks[name] = gin.H{"ok": false, "error": err.Error()}
			ok = false
		} else {
			checks[name] = gin.H{"ok": true}
		}
	}
	return checks, ok
}

func (r *Router) healthCheck(c *gin.Context) {
	checks, overallOK := r.runChecks(c.Request.Context())
	checks["api"] = "ok"

	status := "healthy"
	code := http.StatusOK
	if !overallOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "gemini-chat",
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// liveness probe: process is up and serving HTTP
func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readiness probe: dependencies healthy and ready to serve traffic
func (r *Router) readiness(c *gin.Context) {
	checks, ready := r.runChecks(c.Request.Context())

	if ready {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":    "not_ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/rpc"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	sessionContextKey        = "feedbackbox_session"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserResolver     = errors.New("user resolver dependency required")
	errMissingProcedures       = errors.New("procedure router dependency required")
	errMissingRealtime         = errors.New("realtime dispatcher dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type UserResolver interface {
	ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error)
}

type Dependencies struct {
	SessionValidator SessionValidator
	Users            UserResolver
	Procedures       *rpc.Router
	Realtime         *RealtimeDispatcher
	Logger           *zap.Logger
	AllowedOrigins   []string
	// MutationLimit of zero or less disables mutation throttling.
	MutationLimit     rate.Limit
	MutationBurst     int
	TracingService    string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUserResolver
	}
	if deps.Procedures == nil {
		return nil, errMissingProcedures
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}
	if err := validateOrigins(deps.AllowedOrigins); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	if deps.TracingService != "" {
		router.Use(otelgin.Middleware(deps.TracingService))
	}
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:   deps.SessionValidator,
		users:      deps.Users,
		procedures: deps.Procedures,
		realtime:   deps.Realtime,
		limiter:    newClientRateLimiter(deps.MutationLimit, deps.MutationBurst),
		heartbeat:  heartbeat,
		logger:     logger,
	}
	router.Use(handler.extractSession)

	router.GET("/healthz", handler.handleHealth)
	router.GET("/trpc/:path", handler.handleQuery)
	router.POST("/trpc/:path", handler.limitMutations, handler.handleMutation)
	router.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	sessions   SessionValidator
	users      UserResolver
	procedures *rpc.Router
	realtime   *RealtimeDispatcher
	limiter    *clientRateLimiter
	heartbeat  time.Duration
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// extractSession attaches an rpc.Session when the request carries a valid session token.
// Requests without one continue anonymously; protected procedures reject them later.
func (h *httpHandler) extractSession(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		logger := logging.WithTrace(c.Request.Context(), h.logger)
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			logger.Info("session validation failed", zap.Error(err))
		default:
			logger.Warn("session validation failed", zap.Error(err))
		}
		c.Next()
		return
	}

	userID, err := h.users.ResolveCanonicalUserID(c.Request.Context(), claims)
	if err != nil {
		logging.WithTrace(c.Request.Context(), h.logger).Warn("session user resolution failed",
			zap.String("claims_user_id", claims.UserID),
			zap.Error(err))
		c.Next()
		return
	}

	c.Set(sessionContextKey, &rpc.Session{
		UserID:      userID,
		Email:       claims.UserEmail,
		DisplayName: claims.UserDisplayName,
	})
	c.Next()
}

func sessionFrom(c *gin.Context) *rpc.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, _ := value.(*rpc.Session)
	return session
}

func (h *httpHandler) limitMutations(c *gin.Context) {
	key := c.ClientIP()
	if session := sessionFrom(c); session != nil {
		key = "user:" + session.UserID
	}
	if !h.limiter.Allow(key) {
		h.writeError(c, c.Param("path"), rpc.TooManyRequests())
		return
	}
	c.Next()
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-TAuth-Tenant", "traceparent", "tracestate"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowsAnyOrigin(allowedOrigins) {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func validateOrigins(origins []string) error {
	for _, origin := range origins {
		if origin == "*" {
			continue
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("cors origin %q must include an http or https scheme", origin)
		}
	}
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		requestLogger := logging.WithTrace(c.Request.Context(), logger)
		switch {
		case status >= http.StatusInternalServerError:
			requestLogger.Error("request failed", fields...)
		case status >= http.StatusBadRequest:
			requestLogger.Warn("request error", fields...)
		default:
			requestLogger.Debug("request", fields...)
		}
	}
}

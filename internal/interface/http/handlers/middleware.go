package handlers

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// Context keys set by the middleware.
const (
	RequestIDHeader  = "X-Request-ID"
	SessionKeyHeader = "X-Session-Key"
	requestIDKey     = "request_id"
	userKey          = "user"
	tokenKey         = "token"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST ID / LOGGING / RECOVERY
// ══════════════════════════════════════════════════════════════════════════════

// RequestID reuses the caller's X-Request-ID or generates one, and binds a
// request-scoped logger into the request context.
func RequestID(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		ctx := logger.WithContext(c.Request.Context(), log.WithRequestID(id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetRequestID returns the request id set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// AccessLog logs every request after it completes.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logger.FromContext(c.Request.Context())
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Latency(time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		if u := CurrentUser(c); u != nil {
			fields = append(fields, logger.UserID(u.ID.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("http request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("http request", fields...)
		default:
			log.Debug("http request", fields...)
		}
	}
}

// Recovery turns a panic into a 500 envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.FromContext(c.Request.Context()).Error("panic recovered",
					logger.Any("panic", rec),
					logger.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					ErrorEnvelope{Error: APIError{Message: "internal error", Code: "INTERNAL"}})
			}
		}()
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// Authenticator resolves a bearer token to a live account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*account.User, error)
}

// Authenticate resolves the bearer token when one is present. Requests
// without a token pass through anonymous; a bad token is rejected.
func Authenticate(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			RespondError(c, err)
			return
		}
		c.Set(userKey, user)
		c.Set(tokenKey, token)

		ctx := logger.WithContext(c.Request.Context(),
			logger.FromContext(c.Request.Context()).With(logger.UserID(user.ID.String())))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			RespondError(c, shared.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests not made by an ADMIN account.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			RespondError(c, shared.ErrUnauthorized)
			return
		}
		if !u.IsAdmin() {
			RespondError(c, shared.ErrNotAdmin)
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated account or nil.
func CurrentUser(c *gin.Context) *account.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*account.User)
	return u
}

// CurrentToken returns the bearer token of an authenticated request.
func CurrentToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

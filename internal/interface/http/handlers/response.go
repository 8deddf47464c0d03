package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// APIError is the body of every failed response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError: {"error": {"message", "code"}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

var statusByCode = map[string]int{
	"ACCESS_DENIED":        http.StatusForbidden,
	"GENERATION_FAILED":    http.StatusBadGateway,
	"STORE_UNAVAILABLE":    http.StatusServiceUnavailable,
	"ACCOUNT_LOCKED":       http.StatusLocked,
	"MAINTENANCE":          http.StatusServiceUnavailable,
	"REQUEST_IN_FLIGHT":    http.StatusConflict,
	"STALE_RESULT":         http.StatusConflict,
	"SIGNUP_DISABLED":      http.StatusForbidden,
	"INSUFFICIENT_CREDITS": http.StatusPaymentRequired,
	"UNAUTHORIZED":         http.StatusUnauthorized,
	"FORBIDDEN":            http.StatusForbidden,
	"NOT_FOUND":            http.StatusNotFound,
	"CONFLICT":             http.StatusConflict,
	"ILLEGAL_TRANSITION":   http.StatusConflict,
	"VALIDATION":           http.StatusBadRequest,
	"SERVICE_UNAVAILABLE":  http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for a wire code.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondError writes err as an envelope. Internal errors are logged and
// their message is not exposed.
func RespondError(c *gin.Context, err error) {
	code := shared.ErrorCode(err)
	status := StatusFor(code)
	msg := err.Error()

	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed", logger.Err(err))
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// RespondInvalid writes a VALIDATION envelope for a malformed request.
func RespondInvalid(c *gin.Context, err error) {
	msg := "invalid request"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorEnvelope{Error: APIError{Message: msg, Code: "VALIDATION"}})
}

// RespondOK writes payload with 200.
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

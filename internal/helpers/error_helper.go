package helpers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stable error codes surfaced alongside the HTTP status so clients can
// distinguish failure modes that share a status code.
const (
	CodeTokenMissing         = "token_missing"
	CodeTokenExpired         = "token_expired"
	CodeTokenInvalid         = "token_invalid"
	CodeInvalidInput         = "invalid_input"
	CodeInvalidQuantity      = "invalid_quantity"
	CodeEventNotFound        = "event_not_found"
	CodePurchaseNotFound     = "purchase_not_found"
	CodeInsufficientCapacity = "insufficient_capacity"
	CodeUpstreamUnavailable  = "upstream_unavailable"
	CodeForbidden            = "forbidden"
	CodeAlreadyPaid          = "already_paid"
	CodePersistenceError     = "persistence_error"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func HTTPStatusText(code int) string {
	return http.StatusText(code)
}

func RespondWithError(c *gin.Context, statusCode int, code, customMessage string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   HTTPStatusText(statusCode),
		Code:    code,
		Message: customMessage,
	})
}

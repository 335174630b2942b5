package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/thread-commands/internal/http/middleware"
	"github.com/tbourn/thread-commands/internal/services"
)

// ErrorResponse is the body of every non-2xx response.
//
// Field and Suggestion are set for validation failures: Field names the
// rejected input (for example "triggers[1].text") and Suggestion carries a
// corrected value when one is known.
type ErrorResponse struct {
	RequestID  string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code       string `json:"code"                 example:"validation_failed"`
	Message    string `json:"message"              example:"triggers[0].text: invalid repetition"`
	Field      string `json:"field,omitempty"      example:"triggers[0].text"`
	Suggestion string `json:"suggestion,omitempty" example:"a{1,5}"`
}

func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg})
}

func failWith(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail writes an ErrorResponse; exported for the router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failService maps a service error to its HTTP status.
func failService(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		failWith(c, http.StatusBadRequest, ErrorResponse{
			Code:       ErrCodeValidation,
			Message:    ve.Error(),
			Field:      ve.Field,
			Suggestion: ve.Suggestion,
		})
	case errors.Is(err, services.ErrRuleNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "rule not found")
	case errors.Is(err, services.ErrTooManyRules):
		fail(c, http.StatusConflict, ErrCodeLimitReached, err.Error())
	case errors.Is(err, services.ErrDefaultRuleExists),
		errors.Is(err, services.ErrTargetOwned):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrInvalidScope),
		errors.Is(err, services.ErrInvalidAction),
		errors.Is(err, services.ErrInvalidCooldown):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeInternal, "request timed out")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

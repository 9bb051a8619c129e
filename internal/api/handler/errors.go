package handler

import (
	"errors"
	"net/http"

	"pairlive/backend/internal/apperr"
	"pairlive/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	e, ok := apperr.As(err)
	if !ok {
		if apperr.IsTransient(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindInvalid:
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, apperr.ErrRestricted):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrInsufficientCoins):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrSkipCooldown):
		return http.StatusTooManyRequests
	default:
		return http.StatusConflict
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", currentUser(c)),
			zap.Error(err))
	}
	p := chathub.ErrorPayloadFor(err)
	c.JSON(status, errorBody{Error: errorDetail{Code: p.Code, Message: p.Message}})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: errorDetail{Code: "BAD_REQUEST", Message: message}})
}

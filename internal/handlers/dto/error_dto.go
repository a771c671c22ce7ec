package dto

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quizroom/internal/apperr"
)

type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	Field      string `json:"field,omitempty"`
	MaxAllowed int    `json:"max_allowed,omitempty"`
	Upgrade    bool   `json:"requires_upgrade,omitempty"`
	ReturnPath string `json:"return_path,omitempty"`
}

func JsonError(c *gin.Context, status int, message ...string) {
	msg := ""
	if len(message) > 0 {
		msg = message[0]
	}

	c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg,
	})
}

// JsonAppError maps a service error onto an HTTP response. The caller
// handles ErrSessionAlreadyActive before reaching here when it wants
// no-op-success semantics.
func JsonAppError(c *gin.Context, err error) {
	var valErr *apperr.ValidationError
	if errors.As(err, &valErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   http.StatusText(http.StatusBadRequest),
			Message: valErr.Error(),
			Field:   valErr.Field,
		})
		return
	}

	var limitErr *apperr.LimitExceededError
	if errors.As(err, &limitErr) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:      http.StatusText(http.StatusForbidden),
			Message:    limitErr.Error(),
			MaxAllowed: limitErr.MaxAllowed,
			Upgrade:    limitErr.RequiresUpgrade,
		})
		return
	}

	var authErr *apperr.AuthenticationError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:      http.StatusText(http.StatusUnauthorized),
			Message:    authErr.Error(),
			ReturnPath: authErr.ReturnPath,
		})
		return
	}

	var genErr *apperr.ContentGenerationFailed
	if errors.As(err, &genErr) {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   http.StatusText(http.StatusBadGateway),
			Message: "Question generation failed, please try again",
		})
		return
	}

	if errors.Is(err, apperr.ErrInvalidStateTransition) {
		JsonError(c, http.StatusConflict, err.Error())
		return
	}

	JsonError(c, http.StatusInternalServerError, err.Error())
}

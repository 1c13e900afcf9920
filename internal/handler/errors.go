package handler

import (
	"errors"
	"net/http"

	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type errorKind struct {
	target error
	status int
	code   string
}

// Effect failures are checked first: an EffectError may wrap a store error of any kind.
var errorKinds = []errorKind{
	{service.ErrEffectExecution, http.StatusUnprocessableEntity, "effect_execution_failed"},
	{service.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrAlreadyDecided, http.StatusConflict, "already_decided"},
	{service.ErrAlreadyTerminal, http.StatusConflict, "already_terminal"},
	{service.ErrOutOfOrder, http.StatusConflict, "out_of_order"},
	{service.ErrTimeout, http.StatusServiceUnavailable, "timeout"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
}

func statusOf(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(c *gin.Context, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal server error"
	}
	c.JSON(status, response.ErrorWithCode(status, code, msg))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, "validation_failed", msg))
}

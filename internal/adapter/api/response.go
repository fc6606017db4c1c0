package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldops/dispatch/internal/core/domain"
)

// Response is the envelope for successful replies.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ErrorResponse is the envelope for failed replies.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Success writes a 200 with the standard envelope.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error writes an error envelope with the given status code.
func Error(c *gin.Context, code int, message string, detail string) {
	statusCode := http.StatusInternalServerError
	if code >= 400 && code < 600 {
		statusCode = code
	}

	c.JSON(statusCode, ErrorResponse{
		Code:    code,
		Message: message,
		Detail:  detail,
	})
}

// DomainError maps core sentinel errors onto HTTP statuses. Anything
// unrecognized is a 500.
func DomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrWorkerNotFound):
		Error(c, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, domain.ErrIllegalTransition):
		Error(c, http.StatusConflict, "illegal status transition", err.Error())
	case errors.Is(err, domain.ErrStaleTask):
		Error(c, http.StatusConflict, "task changed concurrently, retry", err.Error())
	case errors.Is(err, domain.ErrWorkerIneligible):
		Error(c, http.StatusUnprocessableEntity, "worker not eligible", err.Error())
	case errors.Is(err, domain.ErrNoEligibleAssignee):
		Error(c, http.StatusUnprocessableEntity, "no eligible assignee", err.Error())
	default:
		Error(c, http.StatusInternalServerError, "internal error", err.Error())
	}
}

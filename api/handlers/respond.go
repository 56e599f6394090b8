package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	mverrors "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/tracing"
)

func respondWithError(c *gin.Context, span opentracing.Span, statusCode int, message string, err error) {
	tracing.TraceErr(span, err)
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(statusCode, body)
}

// statusFor maps service errors to HTTP status codes. Anything unrecognized
// is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mverrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, mverrors.ErrAccountNotFound), errors.Is(err, mverrors.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, mverrors.ErrAccountExists), errors.Is(err, mverrors.ErrRunInProgress), errors.Is(err, mverrors.ErrAccountDisabled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

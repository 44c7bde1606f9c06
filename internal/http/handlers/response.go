// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers. Every error is answered with an
// ErrorResponse carrying a stable code; wizard validation failures also name
// the failing step and a message per field so the client can mark inputs:
//
//	HTTP/1.1 422 Unprocessable Entity
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "validation_failed",
//	  "message": "please fix the highlighted fields",
//	  "step": "hours",
//	  "fields": {"monday": "closing must be after opening"}
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/http/middleware"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Code is one of the ErrCode constants.
	Code string `json:"code" example:"not_found"`
	// Message is safe to show to the user.
	Message string `json:"message" example:"clinic not found"`
	// Step is the wizard step that failed validation.
	Step   string            `json:"step,omitempty" example:"hours"`
	Fields map[string]string `json:"fields,omitempty"`
}

// fail aborts with an error envelope.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg})
}

// failWith aborts with resp, stamping the request id. 5xx answers are
// logged.
func failWith(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", resp.Code).
			Msg(resp.Message)
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is fail for the router's NoRoute and NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failValidation answers 422 with per-field messages.
func failValidation(c *gin.Context, ve *forms.ValidationError) {
	failWith(c, http.StatusUnprocessableEntity, ErrorResponse{
		Code:    ErrCodeValidation,
		Message: MsgValidation,
		Step:    ve.Step,
		Fields:  ve.Fields,
	})
}

// failErr translates err into the error envelope. Errors outside the
// taxonomy are logged and answered with 500 and fallbackCode.
func failErr(c *gin.Context, err error, fallbackCode string) {
	var ve *forms.ValidationError
	if errors.As(err, &ve) {
		failValidation(c, ve)
		return
	}
	status, code, msg, known := classify(err, fallbackCode)
	if !known {
		middleware.LoggerFrom(c).Error().Err(err).Str("path", c.FullPath()).Msg("unhandled service error")
	}
	fail(c, status, code, msg)
}

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }

func isValidation(err error) bool {
	var ve *forms.ValidationError
	return errors.As(err, &ve)
}

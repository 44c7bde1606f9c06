// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the symbolic codes carried in ErrorResponse.Code and
// the mapping from service, form, and identity errors to (status, code).
// Clients branch on codes, never on messages.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes mirror HTTP status semantics.
//   - Domain codes name the failure classes the wizards and the auth flow
//     surface to users: validation_failed (per-field messages),
//     auth_exchange_failed (link rejected, never retried automatically), and
//     fetch_failed (store or upstream unavailable, retry manually).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_failed",
//	  "message": "please fix the highlighted fields",
//	  "step": "hours",
//	  "fields": {"hours": "At least one day must be open"}
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/tbourn/facecloud/internal/authflow"
	"github.com/tbourn/facecloud/internal/draft"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/identity"
	"github.com/tbourn/facecloud/internal/services"
	"github.com/tbourn/facecloud/internal/uistate"
	"github.com/tbourn/facecloud/internal/workflow"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation         = "validation_failed"
	ErrCodeAuthExchange       = "auth_exchange_failed"
	ErrCodeFetchFailed        = "fetch_failed"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeWeakPassword       = "weak_password"
	ErrCodeNoClinic           = "no_clinic"
	ErrCodeCreateFailed       = "create_failed"
	ErrCodeListFailed         = "list_failed"
)

// MsgValidation is the summary message of a validation_failed response.
const MsgValidation = "please fix the highlighted fields"

// errorMapping is one row of the error taxonomy.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty: use err.Error()
}

var errorTable = []errorMapping{
	{services.ErrClinicNotFound, http.StatusNotFound, ErrCodeNotFound, ""},
	{services.ErrLocationNotFound, http.StatusNotFound, ErrCodeNotFound, ""},
	{services.ErrStaffNotFound, http.StatusNotFound, ErrCodeNotFound, ""},
	{services.ErrRoomNotFound, http.StatusNotFound, ErrCodeNotFound, ""},
	{forms.ErrUnknownWizard, http.StatusNotFound, ErrCodeNotFound, ""},
	{services.ErrDuplicateStaff, http.StatusConflict, ErrCodeConflict, ""},
	{services.ErrNoClinic, http.StatusConflict, ErrCodeNoClinic, "create a clinic first"},
	{services.ErrInvalidTimeframe, http.StatusBadRequest, ErrCodeBadRequest, ""},
	{uistate.ErrInvalidTimeframe, http.StatusBadRequest, ErrCodeBadRequest, ""},
	{services.ErrInvalidAction, http.StatusBadRequest, ErrCodeBadRequest, ""},
	{services.ErrInvalidDraftName, http.StatusBadRequest, ErrCodeBadRequest, ""},
	{services.ErrInvalidEmail, http.StatusBadRequest, ErrCodeBadRequest, ""},
	{workflow.ErrInvalidStep, http.StatusBadRequest, ErrCodeBadRequest, ""},
	{authflow.ErrNoToken, http.StatusBadRequest, ErrCodeBadRequest, "the link is missing its token"},
	{identity.ErrInvalidToken, http.StatusUnauthorized, ErrCodeAuthExchange, authflow.UserMessage},
	{identity.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials, ""},
	{identity.ErrUnauthenticated, http.StatusUnauthorized, ErrCodeUnauthorized, ""},
	{identity.ErrWeakPassword, http.StatusUnprocessableEntity, ErrCodeWeakPassword, ""},
	{services.ErrFetchFailed, http.StatusBadGateway, ErrCodeFetchFailed, "could not load data, please retry"},
	{draft.ErrClosed, http.StatusServiceUnavailable, ErrCodeFetchFailed, "service is shutting down"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeFetchFailed, "request timed out, please retry"},
}

// classify maps err to (status, code, message). Unknown errors are 500 with
// fallbackCode and a generic message; ok is false for them so callers log.
func classify(err error, fallbackCode string) (status int, code, msg string, ok bool) {
	var ae *authflow.AuthExchangeError
	if errors.As(err, &ae) {
		return http.StatusUnauthorized, ErrCodeAuthExchange, authflow.UserMessage, true
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			msg = m.message
			if msg == "" {
				msg = m.target.Error()
			}
			return m.status, m.code, msg, true
		}
	}
	if fallbackCode == "" {
		fallbackCode = ErrCodeInternal
	}
	return http.StatusInternalServerError, fallbackCode, "internal server error", false
}

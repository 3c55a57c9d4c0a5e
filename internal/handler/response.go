package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RespondJSON encodes payload before touching w so an encoding failure still
// yields a well-formed 500.
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"data":null,"error":{"code":"INTERNAL_ERROR","message":"An unexpected error occurred"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// domainErrors maps domain sentinels to API errors. Order matters where one
// error wraps another.
var domainErrors = []struct {
	target error
	appErr *AppError
}{
	{domain.ErrActiveVAExists, ErrActiveVAExists},
	{domain.ErrNotFound, ErrResourceNotFound},
	{domain.ErrInvalidAmount, ErrInvalidAmount},
	{domain.ErrUnsupportedBank, ErrUnsupportedBank},
	{domain.ErrInvalidState, ErrInvalidState},
	{domain.ErrAlreadyExists, ErrDuplicate},
	{domain.ErrGatewayUnavailable, ErrGatewayUnavailable},
	{domain.ErrGatewayRejected, ErrGatewayRejected},
	{domain.ErrInvalidSignature, ErrInvalidSignature},
	{domain.ErrInvalidRequest, ErrInvalidRequest},
}

// RespondDomainError writes the API error for err. An active-VA conflict
// carries the existing VA number so the caller can reuse it, and a gateway
// rejection carries the provider's own code and message.
func RespondDomainError(w http.ResponseWriter, err error) {
	var activeErr *domain.ActiveVAExistsError
	if errors.As(err, &activeErr) {
		RespondAppError(w, ErrActiveVAExists, map[string]string{"va_number": activeErr.VANumber})
		return
	}
	var rejectedErr *domain.GatewayRejectedError
	if errors.As(err, &rejectedErr) {
		RespondAppError(w, ErrGatewayRejected, map[string]any{
			"provider_status_code": rejectedErr.Code,
			"provider_message":     rejectedErr.Message,
		})
		return
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			RespondAppError(w, m.appErr, nil)
			return
		}
	}
	slog.Error("unhandled domain error", "error", err)
	RespondAppError(w, ErrInternalError, nil)
}

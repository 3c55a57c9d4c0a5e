package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount         = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrUnsupportedBank       = &AppError{http.StatusBadRequest, "UNSUPPORTED_BANK", "Bank code is not supported"}
	ErrActiveVAExists        = &AppError{http.StatusConflict, "ACTIVE_VA_EXISTS", "An active virtual account already exists for this bank"}
	ErrInvalidState          = &AppError{http.StatusConflict, "INVALID_STATE", "Operation not allowed in the current state"}
	ErrDuplicate             = &AppError{http.StatusConflict, "ALREADY_EXISTS", "Resource already exists"}
	ErrGatewayUnavailable    = &AppError{http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "Payment gateway is unavailable, please retry"}
	ErrGatewayRejected       = &AppError{http.StatusUnprocessableEntity, "GATEWAY_REJECTED", "Payment gateway rejected the request"}
	ErrInvalidSignature      = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Notification signature is invalid"}
	ErrUnknownVirtualAccount = &AppError{http.StatusNotFound, "UNKNOWN_VIRTUAL_ACCOUNT", "No virtual account matches this notification"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)

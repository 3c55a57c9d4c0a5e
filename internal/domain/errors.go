package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnsupportedBank    = errors.New("unsupported bank code")
	ErrActiveVAExists     = errors.New("active virtual account already exists")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrInvalidSignature   = errors.New("invalid notification signature")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected request")
)

// ActiveVAExistsError carries the VA number that blocks a new issuance.
type ActiveVAExistsError struct {
	VANumber string
}

func (e *ActiveVAExistsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrActiveVAExists, e.VANumber)
}

func (e *ActiveVAExistsError) Is(target error) bool {
	return target == ErrActiveVAExists
}

// GatewayRejectedError carries the provider's status code and message for a
// request it refused.
type GatewayRejectedError struct {
	Code    int
	Message string
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrGatewayRejected, e.Code, e.Message)
}

func (e *GatewayRejectedError) Is(target error) bool {
	return target == ErrGatewayRejected
}

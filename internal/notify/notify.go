package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const EventPaymentConfirmed = "payment.confirmed"

// PaymentConfirmed is published after a settlement commits.
type PaymentConfirmed struct {
	Event            string    `json:"event"`
	TenantID         uuid.UUID `json:"tenant_id"`
	CustomerID       uuid.UUID `json:"customer_id"`
	PaymentID        uuid.UUID `json:"payment_id"`
	VirtualAccountID uuid.UUID `json:"virtual_account_id"`
	NotificationID   uuid.UUID `json:"notification_id"`
	VANumber         string    `json:"va_number"`
	BankCode         string    `json:"bank_code"`
	Amount           int64     `json:"amount"`
	Reference        string    `json:"reference"`
	PaidAt           time.Time `json:"paid_at"`
}

func encode(evt PaymentConfirmed) ([]byte, error) {
	evt.Event = EventPaymentConfirmed
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return b, nil
}

type Sink interface {
	Name() string
	PaymentConfirmed(ctx context.Context, evt PaymentConfirmed) error
}

type failureCounter interface {
	DownstreamFailed(sink string)
}

// Fanout delivers to every sink. A failing sink does not stop the others.
type Fanout struct {
	sinks   []Sink
	metrics failureCounter
	logger  *slog.Logger
	timeout time.Duration
}

func NewFanout(logger *slog.Logger, m failureCounter, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, metrics: m, logger: logger, timeout: 5 * time.Second}
}

func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

func (f *Fanout) PaymentConfirmed(ctx context.Context, evt PaymentConfirmed) error {
	var errs []error
	for _, s := range f.sinks {
		sctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := s.PaymentConfirmed(sctx, evt)
		cancel()
		if err != nil {
			if f.metrics != nil {
				f.metrics.DownstreamFailed(s.Name())
			}
			f.logger.Warn("downstream publish failed",
				"sink", s.Name(),
				"payment_id", evt.PaymentID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

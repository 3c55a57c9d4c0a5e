package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
)

type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeLive      Mode = "live"
)

func (m Mode) IsValid() bool {
	return m == ModeSimulated || m == ModeLive
}

// SimulatedServerKey signs and verifies notifications in simulated mode when
// no server key is configured.
const SimulatedServerKey = "SB-Mid-server-simulated"

type Config struct {
	Mode      Mode
	ServerKey string
	BaseURL   string
	Timeout   time.Duration
}

func (c Config) HasLiveCredentials() bool {
	return c.ServerKey != "" && c.ServerKey != SimulatedServerKey
}

type CreateRequest struct {
	OrderRef      string
	Amount        int64
	BankCode      domain.BankCode
	CustomerName  string
	CustomerEmail string
	Expiry        time.Duration
}

type CreateResult struct {
	TransactionID string
	VANumber      string
	Status        string
	RawResponse   json.RawMessage
}

// Client is the boundary to the settlement provider. Simulated and live
// implementations share the signature code so webhook verification runs the
// same path in both modes.
type Client interface {
	CreateVirtualAccount(ctx context.Context, req CreateRequest) (*CreateResult, error)
	QueryStatus(ctx context.Context, orderRef string) (json.RawMessage, error)
	Cancel(ctx context.Context, orderRef string) error
	VerifySignature(n *Notification) bool
	Mode() Mode
}

func New(cfg Config) (Client, error) {
	switch cfg.Mode {
	case ModeSimulated:
		key := cfg.ServerKey
		if key == "" {
			key = SimulatedServerKey
		}
		return NewSimulated(key), nil
	case ModeLive:
		if cfg.ServerKey == "" {
			return nil, fmt.Errorf("gateway.New: live mode requires a server key")
		}
		return NewMidtrans(cfg.BaseURL, cfg.ServerKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("gateway.New: unknown mode %q", cfg.Mode)
	}
}

func validateCreate(req CreateRequest) error {
	if req.OrderRef == "" {
		return fmt.Errorf("%w: order ref is required", domain.ErrInvalidRequest)
	}
	if !req.BankCode.IsValid() {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedBank, req.BankCode)
	}
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

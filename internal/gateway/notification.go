package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
)

// Provider timestamps carry no zone and are reported in WIB.
var wib = time.FixedZone("WIB", 7*60*60)

const providerTimeLayout = "2006-01-02 15:04:05"

var maxGrossAmount = decimal.NewFromInt(math.MaxInt64)

type VANumber struct {
	Bank     string `json:"bank"`
	VANumber string `json:"va_number"`
}

// Notification is the HTTP notification body the provider posts on every
// transaction status change.
type Notification struct {
	TransactionTime   string     `json:"transaction_time,omitempty"`
	TransactionStatus string     `json:"transaction_status"`
	TransactionID     string     `json:"transaction_id"`
	StatusMessage     string     `json:"status_message,omitempty"`
	StatusCode        string     `json:"status_code"`
	SignatureKey      string     `json:"signature_key"`
	SettlementTime    string     `json:"settlement_time,omitempty"`
	PaymentType       string     `json:"payment_type,omitempty"`
	OrderID           string     `json:"order_id"`
	MerchantID        string     `json:"merchant_id,omitempty"`
	GrossAmount       string     `json:"gross_amount"`
	FraudStatus       string     `json:"fraud_status,omitempty"`
	Currency          string     `json:"currency,omitempty"`
	VANumbers         []VANumber `json:"va_numbers,omitempty"`
	PermataVANumber   string     `json:"permata_va_number,omitempty"`
	BillKey           string     `json:"bill_key,omitempty"`
	BillerCode        string     `json:"biller_code,omitempty"`
}

func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("ParseNotification: %w", err)
	}
	return &n, nil
}

// VirtualAccount extracts the VA number and bank the payment was made to.
// Mandiri bill payments are identified by biller code plus bill key.
func (n *Notification) VirtualAccount() (string, domain.BankCode) {
	if len(n.VANumbers) > 0 && n.VANumbers[0].VANumber != "" {
		return n.VANumbers[0].VANumber, domain.BankCode(n.VANumbers[0].Bank)
	}
	if n.PermataVANumber != "" {
		return n.PermataVANumber, domain.BankPermata
	}
	if n.BillKey != "" {
		return n.BillerCode + n.BillKey, domain.BankMandiri
	}
	return "", ""
}

// Amount parses the gross amount into whole rupiah.
func (n *Notification) Amount() (int64, error) {
	return ParseGrossAmount(n.GrossAmount)
}

func (n *Notification) SettledAt() *time.Time {
	raw := n.SettlementTime
	if raw == "" {
		raw = n.TransactionTime
	}
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation(providerTimeLayout, raw, wib)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func ParseGrossAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: gross amount %q", domain.ErrInvalidAmount, s)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: gross amount %q has a fractional part", domain.ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: gross amount %q", domain.ErrInvalidAmount, s)
	}
	if d.GreaterThan(maxGrossAmount) {
		return 0, fmt.Errorf("%w: gross amount %q is out of range", domain.ErrInvalidAmount, s)
	}
	return d.IntPart(), nil
}

// FormatGrossAmount renders whole rupiah the way the provider does, with two
// decimal places and no grouping.
func FormatGrossAmount(amount int64) string {
	return decimal.NewFromInt(amount).StringFixed(2)
}

func FormatProviderTime(t time.Time) string {
	return t.In(wib).Format(providerTimeLayout)
}

package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
)

type vaFormat struct {
	prefix string
	length int
}

// Prefixes follow the sandbox company codes so simulated numbers look like
// the real thing to operators.
var vaFormats = map[domain.BankCode]vaFormat{
	domain.BankBCA:     {prefix: "70012", length: 16},
	domain.BankBNI:     {prefix: "8578", length: 16},
	domain.BankBRI:     {prefix: "26215", length: 15},
	domain.BankPermata: {prefix: "8562", length: 16},
	domain.BankCIMB:    {prefix: "4048", length: 16},
	domain.BankMandiri: {prefix: "70012", length: 17},
}

// SimulatedVANumber derives a bank-format VA number from the order ref and
// issuance time. The same inputs always produce the same number.
func SimulatedVANumber(bank domain.BankCode, orderRef string, at time.Time) string {
	f, ok := vaFormats[bank]
	if !ok {
		f = vaFormat{prefix: "9", length: 16}
	}

	sum := sha256.Sum256([]byte(orderRef + "|" + at.UTC().Format(time.RFC3339Nano)))
	digits := f.length - len(f.prefix)

	var b strings.Builder
	b.WriteString(f.prefix)
	for i := 0; b.Len() < f.length; i++ {
		word := binary.BigEndian.Uint64(sum[(i*8)%len(sum):])
		b.WriteString(fmt.Sprintf("%020d", word))
	}
	return f.prefix + b.String()[len(f.prefix):len(f.prefix)+digits]
}

// Simulated issues VA numbers locally without network calls.
type Simulated struct {
	signer
	now func() time.Time
}

func NewSimulated(serverKey string) *Simulated {
	return &Simulated{signer: signer{serverKey: serverKey}, now: time.Now}
}

func (s *Simulated) Mode() Mode { return ModeSimulated }

func (s *Simulated) CreateVirtualAccount(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := validateCreate(req); err != nil {
		return nil, fmt.Errorf("CreateVirtualAccount: %w", err)
	}

	at := s.now()
	number := SimulatedVANumber(req.BankCode, req.OrderRef, at)
	txID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.OrderRef+"|"+at.UTC().Format(time.RFC3339Nano))).String()

	resp := chargeResponse{
		StatusCode:        "201",
		StatusMessage:     "Success, Bank Transfer transaction is created",
		TransactionID:     txID,
		OrderID:           req.OrderRef,
		GrossAmount:       FormatGrossAmount(req.Amount),
		Currency:          "IDR",
		PaymentType:       "bank_transfer",
		TransactionTime:   FormatProviderTime(at),
		TransactionStatus: string(domain.TransactionStatusPending),
	}
	switch req.BankCode {
	case domain.BankPermata:
		resp.PermataVANumber = number
	case domain.BankMandiri:
		resp.PaymentType = "echannel"
		resp.BillerCode = number[:5]
		resp.BillKey = number[5:]
	default:
		resp.VANumbers = []VANumber{{Bank: string(req.BankCode), VANumber: number}}
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("CreateVirtualAccount: marshal: %w", err)
	}

	logging.FromContext(ctx).Info("simulated virtual account issued",
		"order_ref", req.OrderRef,
		"bank_code", req.BankCode,
		"va_number", number,
	)

	return &CreateResult{
		TransactionID: txID,
		VANumber:      number,
		Status:        resp.TransactionStatus,
		RawResponse:   raw,
	}, nil
}

func (s *Simulated) QueryStatus(_ context.Context, orderRef string) (json.RawMessage, error) {
	raw, err := json.Marshal(map[string]string{
		"status_code":        "201",
		"status_message":     "simulated mode keeps no transaction state",
		"order_id":           orderRef,
		"transaction_status": string(domain.TransactionStatusPending),
	})
	if err != nil {
		return nil, fmt.Errorf("QueryStatus: marshal: %w", err)
	}
	return raw, nil
}

func (s *Simulated) Cancel(_ context.Context, _ string) error {
	return nil
}

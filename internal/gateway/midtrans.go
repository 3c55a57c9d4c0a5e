package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
)

const DefaultSandboxURL = "https://api.sandbox.midtrans.com"

// Midtrans talks to the Core API over HTTP.
type Midtrans struct {
	signer
	baseURL    string
	httpClient *http.Client
}

func NewMidtrans(baseURL, serverKey string, timeout time.Duration) *Midtrans {
	if baseURL == "" {
		baseURL = DefaultSandboxURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Midtrans{
		signer:  signer{serverKey: serverKey},
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (m *Midtrans) Mode() Mode { return ModeLive }

type chargeRequest struct {
	PaymentType        string             `json:"payment_type"`
	TransactionDetails transactionDetails `json:"transaction_details"`
	BankTransfer       *bankTransfer      `json:"bank_transfer,omitempty"`
	Echannel           *echannel          `json:"echannel,omitempty"`
	CustomerDetails    *customerDetails   `json:"customer_details,omitempty"`
	CustomExpiry       *customExpiry      `json:"custom_expiry,omitempty"`
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type bankTransfer struct {
	Bank string `json:"bank"`
}

type echannel struct {
	BillInfo1 string `json:"bill_info1"`
	BillInfo2 string `json:"bill_info2"`
}

type customerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

type customExpiry struct {
	ExpiryDuration int    `json:"expiry_duration"`
	Unit           string `json:"unit"`
}

type chargeResponse struct {
	StatusCode        string     `json:"status_code"`
	StatusMessage     string     `json:"status_message"`
	TransactionID     string     `json:"transaction_id,omitempty"`
	OrderID           string     `json:"order_id,omitempty"`
	GrossAmount       string     `json:"gross_amount,omitempty"`
	Currency          string     `json:"currency,omitempty"`
	PaymentType       string     `json:"payment_type,omitempty"`
	TransactionTime   string     `json:"transaction_time,omitempty"`
	TransactionStatus string     `json:"transaction_status,omitempty"`
	VANumbers         []VANumber `json:"va_numbers,omitempty"`
	PermataVANumber   string     `json:"permata_va_number,omitempty"`
	BillKey           string     `json:"bill_key,omitempty"`
	BillerCode        string     `json:"biller_code,omitempty"`
}

func (r *chargeResponse) vaNumber() string {
	for _, v := range r.VANumbers {
		if v.VANumber != "" {
			return v.VANumber
		}
	}
	if r.PermataVANumber != "" {
		return r.PermataVANumber
	}
	if r.BillKey != "" {
		return r.BillerCode + r.BillKey
	}
	return ""
}

func (m *Midtrans) CreateVirtualAccount(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := validateCreate(req); err != nil {
		return nil, fmt.Errorf("CreateVirtualAccount: %w", err)
	}

	charge := chargeRequest{
		PaymentType: "bank_transfer",
		TransactionDetails: transactionDetails{
			OrderID:     req.OrderRef,
			GrossAmount: req.Amount,
		},
	}
	if req.BankCode == domain.BankMandiri {
		charge.PaymentType = "echannel"
		charge.Echannel = &echannel{BillInfo1: "Payment:", BillInfo2: "Umrah package"}
	} else {
		charge.BankTransfer = &bankTransfer{Bank: string(req.BankCode)}
	}
	if req.CustomerName != "" || req.CustomerEmail != "" {
		charge.CustomerDetails = &customerDetails{FirstName: req.CustomerName, Email: req.CustomerEmail}
	}
	if req.Expiry > 0 {
		charge.CustomExpiry = &customExpiry{ExpiryDuration: int(req.Expiry / time.Minute), Unit: "minute"}
	}

	raw, resp, err := m.do(ctx, http.MethodPost, "/v2/charge", charge)
	if err != nil {
		return nil, fmt.Errorf("CreateVirtualAccount: %w", err)
	}

	number := resp.vaNumber()
	if number == "" {
		return nil, fmt.Errorf("CreateVirtualAccount: %w: response carried no va number", domain.ErrGatewayRejected)
	}

	return &CreateResult{
		TransactionID: resp.TransactionID,
		VANumber:      number,
		Status:        resp.TransactionStatus,
		RawResponse:   raw,
	}, nil
}

func (m *Midtrans) QueryStatus(ctx context.Context, orderRef string) (json.RawMessage, error) {
	raw, _, err := m.do(ctx, http.MethodGet, "/v2/"+url.PathEscape(orderRef)+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("QueryStatus: %w", err)
	}
	return raw, nil
}

// Cancel treats "not found" and "cannot be updated" as success: either way
// the order can no longer be paid.
func (m *Midtrans) Cancel(ctx context.Context, orderRef string) error {
	_, _, err := m.do(ctx, http.MethodPost, "/v2/"+url.PathEscape(orderRef)+"/cancel", nil)
	if err != nil {
		var rejected *domain.GatewayRejectedError
		if errors.As(err, &rejected) && (rejected.Code == http.StatusNotFound || rejected.Code == http.StatusPreconditionFailed) {
			return nil
		}
		return fmt.Errorf("Cancel: %w", err)
	}
	return nil
}

func (m *Midtrans) do(ctx context.Context, method, path string, payload any) (json.RawMessage, *chargeResponse, error) {
	log := logging.FromContext(ctx)

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(m.serverKey, "")

	start := time.Now()
	log.Info("gateway request sent", "provider", "midtrans", "method", method, "path", path)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	log.Info("gateway response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read body: %v", domain.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, fmt.Errorf("%w: unexpected status %d: %s", domain.ErrGatewayUnavailable, resp.StatusCode, truncate(raw))
	}

	var parsed chargeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, nil, &domain.GatewayRejectedError{Code: resp.StatusCode, Message: truncate(raw)}
		}
		return nil, nil, fmt.Errorf("%w: malformed response: %v", domain.ErrGatewayUnavailable, err)
	}

	// The Core API reports most outcomes with HTTP 200 and a status_code in the body.
	code := resp.StatusCode
	if parsed.StatusCode != "" {
		if c, err := strconv.Atoi(parsed.StatusCode); err == nil {
			code = c
		}
	}
	switch {
	case code >= http.StatusInternalServerError:
		return nil, nil, fmt.Errorf("%w: %d %s", domain.ErrGatewayUnavailable, code, parsed.StatusMessage)
	case code >= http.StatusBadRequest:
		return nil, nil, &domain.GatewayRejectedError{Code: code, Message: parsed.StatusMessage}
	}

	return raw, &parsed, nil
}

func truncate(b []byte) string {
	if len(b) > 512 {
		b = b[:512]
	}
	return string(b)
}

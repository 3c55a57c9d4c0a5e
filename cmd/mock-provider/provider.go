package main

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/gateway"
	"github.com/josh-kwaku/umrah-va-gateway/internal/handler"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
)

type chargeRequest struct {
	PaymentType        string `json:"payment_type"`
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	BankTransfer *struct {
		Bank string `json:"bank"`
	} `json:"bank_transfer"`
}

// transaction mirrors the Core API status body so it can be returned as-is.
type transaction struct {
	StatusCode        string             `json:"status_code"`
	StatusMessage     string             `json:"status_message"`
	TransactionID     string             `json:"transaction_id"`
	OrderID           string             `json:"order_id"`
	GrossAmount       string             `json:"gross_amount"`
	Currency          string             `json:"currency"`
	PaymentType       string             `json:"payment_type"`
	TransactionTime   string             `json:"transaction_time"`
	TransactionStatus string             `json:"transaction_status"`
	VANumbers         []gateway.VANumber `json:"va_numbers,omitempty"`
	PermataVANumber   string             `json:"permata_va_number,omitempty"`
	BillKey           string             `json:"bill_key,omitempty"`
	BillerCode        string             `json:"biller_code,omitempty"`
}

type providerError struct {
	StatusCode    string `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

// provider is an in-memory stand-in for the Midtrans Core API. It keeps
// transactions until the process exits.
type provider struct {
	serverKey   string
	callbackURL string
	client      *http.Client
	now         func() time.Time

	mu           sync.Mutex
	transactions map[string]*transaction
}

func newProvider(serverKey, callbackURL string, client *http.Client) *provider {
	return &provider{
		serverKey:    serverKey,
		callbackURL:  callbackURL,
		client:       client,
		now:          time.Now,
		transactions: make(map[string]*transaction),
	}
}

func (p *provider) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v2/charge", p.authorized(p.charge))
	mux.HandleFunc("GET /v2/{order}/status", p.authorized(p.status))
	mux.HandleFunc("POST /v2/{order}/cancel", p.authorized(p.cancel))
	mux.HandleFunc("POST /simulate/{order}/{status}", p.simulate)
}

func (p *provider) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(p.serverKey)) != 1 {
			respond(w, providerError{StatusCode: "401", StatusMessage: "Access denied due to unauthorized transaction"})
			return
		}
		next(w, r)
	}
}

// respond always answers HTTP 200; outcomes travel in the body status_code.
func respond(w http.ResponseWriter, body any) {
	handler.RespondJSON(w, http.StatusOK, body)
}

func (p *provider) charge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respond(w, providerError{StatusCode: "400", StatusMessage: "Invalid JSON"})
		return
	}

	bank := domain.BankMandiri
	if req.PaymentType == "bank_transfer" {
		if req.BankTransfer == nil {
			respond(w, providerError{StatusCode: "400", StatusMessage: "bank_transfer.bank is required"})
			return
		}
		bank = domain.BankCode(strings.ToLower(req.BankTransfer.Bank))
	} else if req.PaymentType != "echannel" {
		respond(w, providerError{StatusCode: "400", StatusMessage: "Payment type is not supported"})
		return
	}
	if !bank.IsValid() {
		respond(w, providerError{StatusCode: "400", StatusMessage: "Bank is not supported"})
		return
	}

	order := req.TransactionDetails.OrderID
	if order == "" || req.TransactionDetails.GrossAmount <= 0 {
		respond(w, providerError{StatusCode: "400", StatusMessage: "transaction_details is invalid"})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.transactions[order]; exists {
		respond(w, providerError{StatusCode: "406", StatusMessage: "The request could not be completed due to a conflict with the current state of the target resource, please try again"})
		return
	}

	at := p.now()
	number := gateway.SimulatedVANumber(bank, order, at)
	tx := &transaction{
		StatusCode:        "201",
		StatusMessage:     "Success, Bank Transfer transaction is created",
		TransactionID:     uuid.NewString(),
		OrderID:           order,
		GrossAmount:       gateway.FormatGrossAmount(req.TransactionDetails.GrossAmount),
		Currency:          "IDR",
		PaymentType:       req.PaymentType,
		TransactionTime:   gateway.FormatProviderTime(at),
		TransactionStatus: string(domain.TransactionStatusPending),
	}
	switch bank {
	case domain.BankPermata:
		tx.PermataVANumber = number
	case domain.BankMandiri:
		tx.BillerCode = number[:5]
		tx.BillKey = number[5:]
	default:
		tx.VANumbers = []gateway.VANumber{{Bank: string(bank), VANumber: number}}
	}
	p.transactions[order] = tx

	logging.FromContext(r.Context()).Info("charge created", "order_id", order, "bank", bank, "va_number", number)
	respond(w, tx)
}

func (p *provider) status(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.transactions[r.PathValue("order")]
	if !ok {
		respond(w, providerError{StatusCode: "404", StatusMessage: "Transaction doesn't exist."})
		return
	}
	out := *tx
	out.StatusCode = "200"
	out.StatusMessage = "Success, transaction is found"
	respond(w, out)
}

func (p *provider) cancel(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.transactions[r.PathValue("order")]
	if !ok {
		respond(w, providerError{StatusCode: "404", StatusMessage: "Transaction doesn't exist."})
		return
	}
	if tx.TransactionStatus != string(domain.TransactionStatusPending) {
		respond(w, providerError{StatusCode: "412", StatusMessage: "Transaction status cannot be updated."})
		return
	}
	tx.TransactionStatus = string(domain.TransactionStatusCancel)
	out := *tx
	out.StatusCode = "200"
	out.StatusMessage = "Success, transaction is canceled"
	respond(w, out)
}

// simulate moves an order to the given status and delivers a signed
// notification to the callback URL, the way the provider does after a
// customer pays at the bank.
func (p *provider) simulate(w http.ResponseWriter, r *http.Request) {
	status := domain.TransactionStatus(r.PathValue("status"))
	switch status {
	case domain.TransactionStatusSettlement, domain.TransactionStatusPending, domain.TransactionStatusExpire,
		domain.TransactionStatusCancel, domain.TransactionStatusDeny:
	default:
		handler.RespondAppError(w, handler.ErrInvalidRequest, map[string]string{"status": "unsupported transaction status"})
		return
	}

	p.mu.Lock()
	tx, ok := p.transactions[r.PathValue("order")]
	if !ok {
		p.mu.Unlock()
		handler.RespondAppError(w, handler.ErrResourceNotFound, nil)
		return
	}
	tx.TransactionStatus = string(status)
	n := p.notification(tx)
	p.mu.Unlock()

	delivered, err := p.deliver(r, n)
	if err != nil {
		logging.FromContext(r.Context()).Error("notification delivery failed", "order_id", n.OrderID, "error", err)
		handler.RespondJSON(w, http.StatusBadGateway, map[string]any{"delivered": false, "error": err.Error(), "notification": n})
		return
	}
	handler.RespondSuccess(w, http.StatusOK, map[string]any{"delivered": true, "callback_status": delivered, "notification": n})
}

func (p *provider) notification(tx *transaction) *gateway.Notification {
	at := p.now()
	n := &gateway.Notification{
		TransactionTime:   tx.TransactionTime,
		TransactionStatus: tx.TransactionStatus,
		TransactionID:     tx.TransactionID,
		StatusMessage:     "midtrans payment notification",
		StatusCode:        "201",
		PaymentType:       tx.PaymentType,
		OrderID:           tx.OrderID,
		MerchantID:        "M-SIMULATED",
		GrossAmount:       tx.GrossAmount,
		FraudStatus:       "accept",
		Currency:          tx.Currency,
		VANumbers:         tx.VANumbers,
		PermataVANumber:   tx.PermataVANumber,
		BillKey:           tx.BillKey,
		BillerCode:        tx.BillerCode,
	}
	switch domain.TransactionStatus(tx.TransactionStatus) {
	case domain.TransactionStatusSettlement:
		n.StatusCode = "200"
		n.SettlementTime = gateway.FormatProviderTime(at)
	case domain.TransactionStatusDeny, domain.TransactionStatusCancel, domain.TransactionStatusExpire:
		n.StatusCode = "202"
	}
	gateway.Sign(n, p.serverKey)
	return n
}

func (p *provider) deliver(r *http.Request, n *gateway.Notification) (int, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return 0, fmt.Errorf("deliver: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.callbackURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("deliver: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deliver: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("deliver: callback answered %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

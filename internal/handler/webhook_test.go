package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/umrah-va-gateway/internal/domain"
	"github.com/josh-kwaku/umrah-va-gateway/internal/service"
)

type mockIngestor struct {
	body   []byte
	result service.IngestResult
	err    error
}

func (m *mockIngestor) ReceiveNotification(_ context.Context, body []byte) (service.IngestResult, error) {
	m.body = body
	return m.result, m.err
}

func TestReceiveMidtrans(t *testing.T) {
	tests := []struct {
		name       string
		result     service.IngestResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "accepted", result: service.IngestAccepted, wantStatus: http.StatusOK},
		{name: "duplicate", result: service.IngestDuplicate, wantStatus: http.StatusOK},
		{name: "bad signature", err: fmt.Errorf("ReceiveNotification: %w", domain.ErrInvalidSignature), wantStatus: http.StatusUnauthorized, wantCode: "INVALID_SIGNATURE"},
		{name: "unknown va", err: fmt.Errorf("ReceiveNotification: %w", domain.ErrNotFound), wantStatus: http.StatusNotFound, wantCode: "UNKNOWN_VIRTUAL_ACCOUNT"},
		{name: "malformed", err: fmt.Errorf("ReceiveNotification: %w", domain.ErrInvalidRequest), wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "store down", err: errors.New("connection refused"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ingestor := &mockIngestor{result: tc.result, err: tc.err}
			h := NewWebhookHandler(ingestor)

			body := `{"transaction_id":"tx-1","order_id":"o-1","signature_key":"abc"}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/midtrans", strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.ReceiveMidtrans(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, body, string(ingestor.body))

			resp := decodeResponse(t, rec)
			if tc.wantCode == "" {
				assert.True(t, resp.Success)
				data, ok := resp.Data.(map[string]any)
				require.True(t, ok)
				assert.Equal(t, string(tc.result), data["status"])
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestReceiveMidtrans_BodyTooLarge(t *testing.T) {
	ingestor := &mockIngestor{}
	h := NewWebhookHandler(ingestor)

	body := strings.Repeat("a", maxNotificationBody+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/midtrans", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ReceiveMidtrans(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, ingestor.body, "oversized body must not reach ingestion")
}

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/umrah-va-gateway/internal/auth"
)

var testTenant = uuid.MustParse("6f1c1f0e-3b7a-4d55-9a64-0c2b7f1d9e01")

func withTenant(r *http.Request, tenantID uuid.UUID) *http.Request {
	claims := &auth.Claims{TenantID: tenantID, UserID: uuid.New(), Email: "staff@amanah-travel.co.id"}
	return r.WithContext(auth.ContextWithClaims(r.Context(), claims))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

// serve routes the request through a mux so path values are populated.
func serve(pattern string, h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

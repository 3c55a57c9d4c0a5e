package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/umrah-va-gateway/internal/auth"
	"github.com/josh-kwaku/umrah-va-gateway/internal/handler"
	"github.com/josh-kwaku/umrah-va-gateway/internal/logging"
)

// Auth admits requests carrying a valid bearer token and scopes them to the
// token's tenant. Downstream logs carry tenant_id and user_id.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, appErr := bearerToken(r)
			if appErr != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="umrah-va-gateway"`)
				handler.RespondAppError(w, appErr, nil)
				return
			}

			claims, err := auth.ValidateToken(raw, secret)
			if err != nil {
				logging.FromContext(r.Context()).Debug("token rejected", "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="umrah-va-gateway", error="invalid_token"`)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithClaims(r.Context(), claims)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(
				"tenant_id", claims.TenantID,
				"user_id", claims.UserID,
			))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header. The scheme
// name is matched case-insensitively.
func bearerToken(r *http.Request) (string, *handler.AppError) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", handler.ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", handler.ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", handler.ErrInvalidToken
	}
	return token, nil
}

package server

import (
	"net/http"
	"strings"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/codec"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// ClientAPIKey returns the key a client sent in Authorization (Bearer) or
// x-api-key. The bridge never forwards it.
func ClientAPIKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("x-api-key")); k != "" {
		return k
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return auth
}

// RequireAPIKey rejects requests that carry no client key with an
// authentication error in ingress's envelope. The value is not validated.
func RequireAPIKey(ingress domain.Ingress) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ClientAPIKey(r) == "" {
				apiErr := codec.WriteError(w, ingress,
					domain.NewAPIError(domain.ErrorTypeAuthentication, "missing API key; send Authorization: Bearer <key> or x-api-key"))
				AddError(r.Context(), apiErr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package http

import (
	"net/http"
	"strings"

	"rentacar-escrow-backend/internal/security"
)

// authenticated wraps a handler with bearer-token validation. The proven
// account is attached to the request context; authorization against the
// required identity happens inside the engine.
func (h *Handler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			respondError(w, r.Method, r.URL.Path, http.StatusUnauthorized, "missing authorization header")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			respondError(w, r.Method, r.URL.Path, http.StatusUnauthorized, "authorization header must be a bearer token")
			return
		}

		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			respondError(w, r.Method, r.URL.Path, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := security.WithCallerAccount(r.Context(), claims.Account)
		next(w, r.WithContext(ctx))
	}
}

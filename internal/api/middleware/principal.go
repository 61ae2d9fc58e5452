package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zatekoja/bpcare/internal/domain/entities"
)

const (
	// HeaderUserID carries the authenticated user id set by the upstream gateway
	HeaderUserID = "X-User-ID"
	// HeaderUserRole carries the authenticated user's role
	HeaderUserRole = "X-User-Role"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p entities.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller placed on the context by PrincipalMiddleware
func PrincipalFromContext(ctx context.Context) (entities.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(entities.Principal)
	return p, ok
}

// PrincipalMiddleware reads the caller identity forwarded by the auth layer.
// Requests without a user id or with an unknown role are rejected.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		role := entities.UserRole(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
		if id == "" || !role.Valid() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "authentication required",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		ctx := WithPrincipal(r.Context(), entities.Principal{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

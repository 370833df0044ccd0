package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/browsium/roundtable/backend/internal/config"
	"github.com/browsium/roundtable/backend/pkg/utils"
)

// Identity is the authenticated caller, as asserted by the access proxy.
type Identity struct {
	Email string
	Admin bool
}

type contextKey struct{}

// debugEmailHeader lets local clients pick an identity when DEBUG is on
// and no proxy header is present.
const debugEmailHeader = "X-User-Email"

// Identify extracts the caller's email from the access-proxy header and
// attaches it to the request context. Requests without an identity are
// rejected; in debug mode a fallback header or a fixed local identity
// is accepted instead.
func Identify(cfg config.IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := strings.TrimSpace(r.Header.Get(cfg.EmailHeader))
			if email == "" && cfg.Debug {
				email = strings.TrimSpace(r.Header.Get(debugEmailHeader))
				if email == "" {
					email = "dev@localhost"
				}
			}
			if email == "" {
				utils.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			email = strings.ToLower(email)
			id := Identity{Email: email, Admin: cfg.IsAdmin(email)}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, id)))
		})
	}
}

// FromContext returns the caller identity attached by Identify.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

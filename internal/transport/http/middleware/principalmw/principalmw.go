package principalmw

import (
	"net/http"

	"github.com/trendora/order-svc/internal/service/models/principal"
)

// Identity headers injected by the upstream authentication layer. This
// service performs no credential verification of its own.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

// New returns a middleware that extracts the authenticated principal from the
// identity headers and stores it in the request context. Requests without a
// usable identity are rejected before reaching any handler.
func New() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderUserID)
			role, err := principal.ParseRole(r.Header.Get(HeaderUserRole))
			if id == "" || err != nil {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)

				return
			}

			ctx := principal.WithPrincipal(r.Context(), principal.Principal{
				ID:   id,
				Role: role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

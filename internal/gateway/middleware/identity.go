package middleware

import (
	"net/http"
	"strings"

	"llmnexus/internal/gateway/api"
	"llmnexus/internal/globalctx"
)

// Identity copies the caller identity header onto the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(api.IdentityHeader)); id != "" {
			r = r.WithContext(globalctx.WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

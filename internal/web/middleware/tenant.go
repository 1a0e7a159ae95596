package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/eleves/internal/core"
)

// TenantHeader carries the school id of the caller.
const TenantHeader = "X-Ecole-ID"

// RequireTenant scopes the request to the school named in X-Ecole-ID and
// records the client IP for logging. Requests without a school id are
// rejected before reaching a handler.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenantID == "" {
			slog.Warn("tenant: missing school id",
				"path", r.URL.Path,
				"method", r.Method,
				"remote_addr", r.RemoteAddr,
			)
			writeJSONError(w, http.StatusBadRequest, core.MapError(core.ErrMissingTenant))
			return
		}

		ctx := core.ContextWithTenant(r.Context(), tenantID)
		ctx = core.ContextWithIPAddress(ctx, extractIPString(r.RemoteAddr))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

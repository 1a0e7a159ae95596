package web

import (
	"net/http"

	"github.com/JonMunkholm/eleves/internal/core"
)

// tenantID returns the school id set by middleware.RequireTenant.
func tenantID(r *http.Request) string {
	id, _ := core.TenantFromContext(r.Context())
	return id
}

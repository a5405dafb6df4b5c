package http

import (
	"net/http"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/pkg/httpx"
)

// RequireRole gates a handler behind a minimum role. The role is read from
// the access token's claims, so a role change takes effect on the next
// token refresh, not mid-token. Unknown roles never pass.
func RequireRole(min domain.Role) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := domain.Role(httpx.RoleFromContext(r.Context()))
			if !role.AtLeast(min) {
				httpx.WriteError(w, http.StatusForbidden, "insufficient_privilege", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

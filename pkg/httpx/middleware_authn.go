package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/openshelf-dev/identity/pkg/jwtx"
	"github.com/openshelf-dev/identity/pkg/slogx"
)

// TokenDecoder verifies a bearer token of an expected kind. *jwtx.Codec
// satisfies it.
type TokenDecoder interface {
	Decode(token string, expected jwtx.Kind) (jwtx.Claims, error)
}

// AuthnMiddleware requires a valid access-kind bearer token and injects the
// subject, role, and full claims into the request context. Everything that
// goes wrong is a plain 401; the response never says which check failed.
func AuthnMiddleware(d TokenDecoder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := d.Decode(raw, jwtx.KindAccess)
			if err != nil {
				log.Warn("bearer token rejected", "err", err)
				writeBearerError(w, "invalid token")
				return
			}

			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyPrincipalID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyRole, c.Role)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}

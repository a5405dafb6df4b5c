package httpx

import "context"

type ctxKey string

const (
	CtxKeyPrincipalID ctxKey = "principal_id"
	CtxKeyRole        ctxKey = "role"
	CtxKeyClaims      ctxKey = "claims"
)

// PrincipalIDFromContext returns the authenticated principal id, or "" if
// the request never passed through AuthnMiddleware.
func PrincipalIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyPrincipalID).(string); ok {
		return v
	}
	return ""
}

// RoleFromContext returns the authenticated principal's role, or "".
func RoleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyRole).(string); ok {
		return v
	}
	return ""
}

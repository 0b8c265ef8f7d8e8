package auth

import "context"

// AuthenticatedContext is the immutable, request-scoped view of a verified
// caller. It is built by AuthenticateRequest from the live principal row and
// threaded explicitly through call parameters; nothing mutates it.
type AuthenticatedContext struct {
	PrincipalID        string
	Username           string
	Role               Role
	TenantID           string
	BranchID           string
	MustChangePassword bool
}

type authContextKey struct{}

// ContextWithAuthenticated attaches the verified caller to the context.
func ContextWithAuthenticated(ctx context.Context, actx AuthenticatedContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, actx)
}

// AuthenticatedFromContext extracts the verified caller from the context.
func AuthenticatedFromContext(ctx context.Context) (AuthenticatedContext, bool) {
	if ctx == nil {
		return AuthenticatedContext{}, false
	}
	v, ok := ctx.Value(authContextKey{}).(AuthenticatedContext)
	if !ok || v.PrincipalID == "" {
		return AuthenticatedContext{}, false
	}
	return v, true
}

package auth

import "context"

type contextKey int

const (
	principalKey contextKey = iota
	rawTokenKey
)

// ContextWithPrincipal returns a context carrying the verified principal.
// The authn middleware stores it once per request; handlers read it back
// with PrincipalFromContext.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext reports the principal attached to ctx, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

// ContextWithToken returns a context carrying the raw bearer token so that
// handlers acting on the presented token (logout) can reach it. Empty
// tokens are not stored.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, rawTokenKey, token)
}

// TokenFromContext reports the raw bearer token attached to ctx, if any.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(rawTokenKey).(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

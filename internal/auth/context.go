package auth

import (
	"context"
	"strings"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	tokenKey
)

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalKey).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ContextWithUser replaces the caller identity and resolves the grants of
// roles. An organization already present in ctx is kept.
func ContextWithUser(ctx context.Context, userID string, roles []string) context.Context {
	p := NewPrincipal(&Claims{Roles: roles})
	p.UserID = strings.TrimSpace(userID)
	if prev, ok := PrincipalFromContext(ctx); ok {
		p.OrganizationID = prev.OrganizationID
	}
	return ContextWithPrincipal(ctx, p)
}

// ContextWithOrganization scopes the caller in ctx to orgID.
func ContextWithOrganization(ctx context.Context, orgID string) context.Context {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ctx
	}
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		p = NewPrincipal(nil)
	}
	p.OrganizationID = orgID
	return ContextWithPrincipal(ctx, p)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == "" {
		return "", false
	}
	return p.UserID, true
}

func OrganizationFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.OrganizationID == "" {
		return "", false
	}
	return p.OrganizationID, true
}

// RolesFromContext returns a copy of the caller's normalized roles.
func RolesFromContext(ctx context.Context) []string {
	p, ok := PrincipalFromContext(ctx)
	if !ok || len(p.Roles) == 0 {
		return nil
	}
	return append([]string(nil), p.Roles...)
}

func HasRole(ctx context.Context, role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

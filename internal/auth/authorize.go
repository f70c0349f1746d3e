package auth

import "errors"

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
)

// Principal represents an authenticated caller with resolved permissions.
type Principal struct {
	UserID         string
	OrganizationID string
	Roles          []string
	Permissions    map[string]struct{}
}

// NewPrincipal resolves the permissions granted by claims' roles.
func NewPrincipal(claims *Claims) Principal {
	p := Principal{Permissions: make(map[string]struct{})}
	if claims == nil {
		return p
	}
	p.UserID = claims.Subject
	p.OrganizationID = claims.Organization
	p.Roles = dedupeRoles(claims.Roles)
	for _, role := range p.Roles {
		for _, perm := range rolePermissions[role] {
			p.Permissions[perm] = struct{}{}
		}
	}
	return p
}

// HasPermission reports whether the principal can execute action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// CanAccess reports whether the principal may act inside orgID.
func (p Principal) CanAccess(orgID string) bool {
	if p.IsAdmin() {
		return true
	}
	return orgID != "" && p.OrganizationID == orgID
}

// Authorize checks organization scope and then perm.
func (p Principal) Authorize(orgID, perm string) error {
	if !p.CanAccess(orgID) {
		return ErrForbidden
	}
	if !p.HasPermission(perm) {
		return ErrForbidden
	}
	return nil
}

package auth

import (
	"errors"
	"testing"
)

func TestPrincipalPermissions(t *testing.T) {
	principal := NewPrincipal(&Claims{Roles: []string{"Viewer", "recorder"}, Organization: "org"})

	if !principal.HasPermission(PermReportRead) || !principal.HasPermission(PermActivityRecord) {
		t.Fatalf("expected viewer and recorder grants, got %v", principal.Permissions)
	}
	if principal.HasPermission(PermPeriodReset) {
		t.Fatalf("unexpected permission")
	}
}

func TestPrincipalOrganizationScope(t *testing.T) {
	manager := NewPrincipal(&Claims{Roles: []string{RoleManager}, Organization: "org-a"})
	if err := manager.Authorize("org-a", PermPeriodReset); err != nil {
		t.Fatalf("manager should reset own organization: %v", err)
	}
	if err := manager.Authorize("org-b", PermReportRead); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for foreign organization, got %v", err)
	}
	if err := manager.Authorize("org-a", PermSettingsManage); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without settings grant, got %v", err)
	}

	admin := NewPrincipal(&Claims{Roles: []string{RoleAdmin}})
	if err := admin.Authorize("org-b", PermSettingsManage); err != nil {
		t.Fatalf("admin should access any organization: %v", err)
	}

	unscoped := NewPrincipal(&Claims{Roles: []string{RoleViewer}})
	if unscoped.CanAccess("") {
		t.Fatal("empty organization must never match")
	}
}

func TestNewPrincipalNilClaims(t *testing.T) {
	p := NewPrincipal(nil)
	if p.HasPermission(PermReportRead) || p.IsAdmin() {
		t.Fatal("nil claims must grant nothing")
	}
}

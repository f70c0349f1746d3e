package roster

import (
	"context"
	"errors"
	"time"

	"rollcall.org/internal/activity"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
)

// Assignment links a member to a role inside one organization.
type Assignment struct {
	OrganizationID string    `json:"organization_id"`
	UserID         int64     `json:"user_id"`
	RoleID         string    `json:"role_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionEnd closes a presence session.
type SessionEnd struct {
	EndTime      time.Time
	IdleMinutes  float64
	MessageCount int64
}

// Store persists roster configuration and raw activity records. Records are
// always addressed by organization; ids are assigned by the caller.
type Store interface {
	CreateRole(ctx context.Context, orgID string, role activity.Role) (activity.Role, error)
	ListRoles(ctx context.Context, orgID string) ([]activity.Role, error)
	GetRole(ctx context.Context, orgID, roleID string) (activity.Role, error)

	CreateQuota(ctx context.Context, orgID string, q activity.Quota) (activity.Quota, error)
	ListQuotas(ctx context.Context, orgID string) ([]activity.Quota, error)
	DeleteQuota(ctx context.Context, orgID, quotaID string) error

	AssignRole(ctx context.Context, orgID string, userID int64, roleID string) (Assignment, error)
	RemoveRole(ctx context.Context, orgID string, userID int64, roleID string) error
	ListMembers(ctx context.Context, orgID string) ([]activity.Member, error)

	// AddReset fails with ErrConflict unless r.ResetAt is after every stored
	// reset. The check and the append are atomic.
	AddReset(ctx context.Context, orgID string, r activity.PeriodReset) (activity.PeriodReset, error)
	ListResets(ctx context.Context, orgID string) ([]activity.PeriodReset, error)
	AddAdjustment(ctx context.Context, orgID string, a activity.Adjustment) (activity.Adjustment, error)

	PutSettings(ctx context.Context, orgID string, raw []byte) error
	// GetSettings returns nil when the organization never stored settings.
	GetSettings(ctx context.Context, orgID string) ([]byte, error)

	StartSession(ctx context.Context, orgID string, s activity.PresenceSession) (activity.PresenceSession, error)
	EndSession(ctx context.Context, orgID, sessionID string, end SessionEnd) (activity.PresenceSession, error)
	CreateEvent(ctx context.Context, orgID string, ev activity.HostedEvent) (activity.HostedEvent, error)
	GetEvent(ctx context.Context, orgID, eventID string) (activity.HostedEvent, error)
	AddParticipation(ctx context.Context, orgID string, p activity.EventParticipation) (activity.EventParticipation, error)
	AddVisit(ctx context.Context, orgID string, v activity.VisitRecord) (activity.VisitRecord, error)
}

package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rollcall.org/internal/activity"
	"rollcall.org/internal/ids"
	"rollcall.org/internal/obs"
)

// Service validates roster management and record ingestion before it reaches
// the store. The computation engine trusts what passes through here.
type Service struct {
	store    Store
	defaults activity.Settings
	now      func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaults sets the settings used for organizations without stored settings.
func WithDefaults(st activity.Settings) Option {
	return func(s *Service) { s.defaults = st }
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("roster store is required")
	}
	s := &Service{
		store:    store,
		defaults: activity.DefaultSettings(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) CreateRole(ctx context.Context, orgID, name string, owner bool) (activity.Role, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.Role{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return activity.Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, orgID, activity.Role{ID: ids.New(), Name: name, IsOwnerRole: owner})
}

func (s *Service) ListRoles(ctx context.Context, orgID string) ([]activity.Role, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return nil, err
	}
	return s.store.ListRoles(ctx, orgID)
}

// CreateQuota rejects quotas the evaluator could not score with an
// *activity.ConfigurationError, including quotas scoped to an owner role.
func (s *Service) CreateQuota(ctx context.Context, orgID string, q activity.Quota) (activity.Quota, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.Quota{}, err
	}
	q.ID = ids.New()
	q.Name = strings.TrimSpace(q.Name)
	q.Type = activity.QuotaType(strings.TrimSpace(string(q.Type)))
	q.SessionTypeFilter = strings.ToLower(strings.TrimSpace(q.SessionTypeFilter))
	q.RoleIDs = dedupeStrings(q.RoleIDs)
	if err := activity.ValidateQuota(q); err != nil {
		return activity.Quota{}, err
	}
	if len(q.RoleIDs) == 0 {
		return activity.Quota{}, fmt.Errorf("%w: quota must be scoped to at least one role", ErrInvalidInput)
	}
	if q.SessionTypeFilter != "" {
		st, err := s.GetSettings(ctx, orgID)
		if err != nil {
			return activity.Quota{}, err
		}
		if _, known := st.Category(q.SessionTypeFilter); !known {
			return activity.Quota{}, &activity.ConfigurationError{Reason: fmt.Sprintf("unknown session type %q", q.SessionTypeFilter)}
		}
	}
	for _, roleID := range q.RoleIDs {
		role, err := s.store.GetRole(ctx, orgID, roleID)
		if err != nil {
			return activity.Quota{}, err
		}
		if role.IsOwnerRole {
			return activity.Quota{}, &activity.ConfigurationError{Reason: fmt.Sprintf("owner role %s cannot carry quotas", role.ID)}
		}
	}
	return s.store.CreateQuota(ctx, orgID, q)
}

func (s *Service) ListQuotas(ctx context.Context, orgID string) ([]activity.Quota, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return nil, err
	}
	return s.store.ListQuotas(ctx, orgID)
}

func (s *Service) DeleteQuota(ctx context.Context, orgID, quotaID string) error {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return err
	}
	quotaID = strings.TrimSpace(quotaID)
	if quotaID == "" {
		return fmt.Errorf("%w: quota_id is required", ErrInvalidInput)
	}
	return s.store.DeleteQuota(ctx, orgID, quotaID)
}

func (s *Service) AssignRole(ctx context.Context, orgID string, userID int64, roleID string) (Assignment, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return Assignment{}, err
	}
	roleID = strings.TrimSpace(roleID)
	if userID <= 0 || roleID == "" {
		return Assignment{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.AssignRole(ctx, orgID, userID, roleID)
}

func (s *Service) RemoveRole(ctx context.Context, orgID string, userID int64, roleID string) error {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return err
	}
	roleID = strings.TrimSpace(roleID)
	if userID <= 0 || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.RemoveRole(ctx, orgID, userID, roleID)
}

// ResetPeriod appends a reset at the current time. Resets are never edited or
// removed and the store rejects one that is not after the latest, so the
// tracking window can only move forward.
func (s *Service) ResetPeriod(ctx context.Context, orgID, by string) (activity.PeriodReset, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.PeriodReset{}, err
	}
	by = strings.TrimSpace(by)
	if by == "" {
		return activity.PeriodReset{}, fmt.Errorf("%w: reset_by is required", ErrInvalidInput)
	}
	return s.store.AddReset(ctx, orgID, activity.PeriodReset{ID: ids.New(), ResetAt: s.now(), ResetBy: by})
}

func (s *Service) ListResets(ctx context.Context, orgID string) ([]activity.PeriodReset, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return nil, err
	}
	return s.store.ListResets(ctx, orgID)
}

// AddAdjustment records a manual minute correction. Negative values are allowed.
func (s *Service) AddAdjustment(ctx context.Context, orgID string, userID, minutes int64, reason, by string) (activity.Adjustment, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.Adjustment{}, err
	}
	if userID <= 0 {
		return activity.Adjustment{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if minutes == 0 {
		return activity.Adjustment{}, fmt.Errorf("%w: minutes must be non-zero", ErrInvalidInput)
	}
	return s.store.AddAdjustment(ctx, orgID, activity.Adjustment{
		ID:        ids.New(),
		UserID:    userID,
		Minutes:   minutes,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: s.now(),
		CreatedBy: strings.TrimSpace(by),
	})
}

// UpdateSettings merges p into the stored settings of orgID and returns the
// resolved result. Fields p does not set are left unstored and keep
// following the service defaults.
func (s *Service) UpdateSettings(ctx context.Context, orgID string, p activity.SettingsPatch) (activity.Settings, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.Settings{}, err
	}
	if p.TrackingEpoch != nil && p.TrackingEpoch.After(s.now()) {
		return activity.Settings{}, fmt.Errorf("%w: tracking epoch is in the future", ErrInvalidInput)
	}
	stored, err := s.store.GetSettings(ctx, orgID)
	if err != nil {
		return activity.Settings{}, err
	}
	raw, err := activity.ApplySettingsPatch(stored, p)
	if err != nil {
		return activity.Settings{}, err
	}
	if err := s.store.PutSettings(ctx, orgID, raw); err != nil {
		return activity.Settings{}, err
	}
	st, _ := activity.ParseSettingsWith(raw, s.defaults)
	return st, nil
}

// GetSettings returns the organization settings. A malformed stored blob is
// logged and the affected fields fall back to defaults.
func (s *Service) GetSettings(ctx context.Context, orgID string) (activity.Settings, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.Settings{}, err
	}
	raw, err := s.store.GetSettings(ctx, orgID)
	if err != nil {
		return activity.Settings{}, err
	}
	st, perr := activity.ParseSettingsWith(raw, s.defaults)
	if perr != nil {
		obs.Logger().WarnContext(ctx, "stored settings malformed",
			"organization_id", orgID,
			"error", perr.Error(),
		)
	}
	return st, nil
}

func (s *Service) StartSession(ctx context.Context, orgID string, userID int64) (activity.PresenceSession, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.PresenceSession{}, err
	}
	if userID <= 0 {
		return activity.PresenceSession{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.StartSession(ctx, orgID, activity.PresenceSession{
		ID:        ids.New(),
		UserID:    userID,
		StartTime: s.now(),
	})
}

func (s *Service) EndSession(ctx context.Context, orgID, sessionID string, idleMinutes float64, messages int64) (activity.PresenceSession, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.PresenceSession{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return activity.PresenceSession{}, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	if idleMinutes < 0 || messages < 0 {
		return activity.PresenceSession{}, fmt.Errorf("%w: idle minutes and message count must not be negative", ErrInvalidInput)
	}
	return s.store.EndSession(ctx, orgID, sessionID, SessionEnd{
		EndTime:      s.now(),
		IdleMinutes:  idleMinutes,
		MessageCount: messages,
	})
}

// RecordEvent stores a hosted event. Slots without an id get one and every
// slot kind must be one of the known kinds or empty.
func (s *Service) RecordEvent(ctx context.Context, orgID string, ev activity.HostedEvent) (activity.HostedEvent, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.HostedEvent{}, err
	}
	if ev.OwnerID <= 0 {
		return activity.HostedEvent{}, fmt.Errorf("%w: owner_id is required", ErrInvalidInput)
	}
	if ev.Date.IsZero() {
		ev.Date = s.now()
	}
	ev.ID = ids.New()
	ev.EventTypeTag = strings.ToLower(strings.TrimSpace(ev.EventTypeTag))
	seen := make(map[string]struct{}, len(ev.Slots))
	for i := range ev.Slots {
		slot := &ev.Slots[i]
		slot.Name = strings.TrimSpace(slot.Name)
		slot.ID = strings.TrimSpace(slot.ID)
		if slot.ID == "" {
			slot.ID = fmt.Sprintf("slot-%d", i)
		}
		if _, dup := seen[slot.ID]; dup {
			return activity.HostedEvent{}, fmt.Errorf("%w: duplicate slot id %s", ErrInvalidInput, slot.ID)
		}
		seen[slot.ID] = struct{}{}
		if !slot.Kind.Valid() {
			return activity.HostedEvent{}, fmt.Errorf("%w: unsupported slot kind %q", ErrInvalidInput, slot.Kind)
		}
	}
	return s.store.CreateEvent(ctx, orgID, ev)
}

// ClaimSlot records that userID took the slot at slotIndex of an event.
func (s *Service) ClaimSlot(ctx context.Context, orgID, eventID string, userID int64, slotIndex int) (activity.EventParticipation, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.EventParticipation{}, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" || userID <= 0 {
		return activity.EventParticipation{}, fmt.Errorf("%w: event_id and user_id are required", ErrInvalidInput)
	}
	ev, err := s.store.GetEvent(ctx, orgID, eventID)
	if err != nil {
		return activity.EventParticipation{}, err
	}
	if slotIndex < 0 || slotIndex >= len(ev.Slots) {
		return activity.EventParticipation{}, fmt.Errorf("%w: slot index %d outside %d slots", ErrInvalidInput, slotIndex, len(ev.Slots))
	}
	return s.store.AddParticipation(ctx, orgID, activity.EventParticipation{
		UserID:     userID,
		EventID:    ev.ID,
		RoleSlotID: ev.Slots[slotIndex].ID,
		SlotIndex:  slotIndex,
	})
}

func (s *Service) RecordVisit(ctx context.Context, orgID string, hostID int64, participantIDs []int64) (activity.VisitRecord, error) {
	orgID, err := requireOrg(orgID)
	if err != nil {
		return activity.VisitRecord{}, err
	}
	if hostID <= 0 {
		return activity.VisitRecord{}, fmt.Errorf("%w: host_id is required", ErrInvalidInput)
	}
	seen := map[int64]struct{}{hostID: {}}
	participants := make([]int64, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id <= 0 {
			return activity.VisitRecord{}, fmt.Errorf("%w: participant ids must be positive", ErrInvalidInput)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}
	return s.store.AddVisit(ctx, orgID, activity.VisitRecord{
		ID:             ids.New(),
		HostID:         hostID,
		ParticipantIDs: participants,
		Time:           s.now(),
	})
}

func requireOrg(orgID string) (string, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return "", fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return orgID, nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rollcall.org/internal/activity"
	"rollcall.org/internal/roster"
)

var _ roster.Store = (*InMemory)(nil)

type orgState struct {
	settings       []byte
	roles          []activity.Role
	quotas         []activity.Quota
	members        map[int64]map[string]time.Time
	resets         []activity.PeriodReset
	adjustments    []activity.Adjustment
	sessions       []activity.PresenceSession
	events         []activity.HostedEvent
	participations []activity.EventParticipation
	visits         []activity.VisitRecord
}

// InMemory implements roster.Store and the report snapshot source with
// in-process concurrency safety. Organizations are created on first write.
type InMemory struct {
	mu   sync.RWMutex
	orgs map[string]*orgState
	now  func() time.Time
}

// New creates an empty store.
func New() *InMemory {
	return &InMemory{
		orgs: make(map[string]*orgState),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemory) org(orgID string) *orgState {
	st, ok := s.orgs[orgID]
	if !ok {
		st = &orgState{members: make(map[int64]map[string]time.Time)}
		s.orgs[orgID] = st
	}
	return st
}

func (s *InMemory) lookup(orgID string) *orgState {
	if st, ok := s.orgs[orgID]; ok {
		return st
	}
	return &orgState{}
}

func (s *InMemory) CreateRole(ctx context.Context, orgID string, role activity.Role) (activity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.org(orgID)
	for _, r := range st.roles {
		if r.ID == role.ID || r.Name == role.Name {
			return activity.Role{}, roster.ErrConflict
		}
	}
	role.QuotaIDs = nil
	st.roles = append(st.roles, role)
	return role, nil
}

func (s *InMemory) ListRoles(ctx context.Context, orgID string) ([]activity.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.lookup(orgID)
	out := make([]activity.Role, 0, len(st.roles))
	for _, r := range st.roles {
		out = append(out, withQuotaIDs(r, st.quotas))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) GetRole(ctx context.Context, orgID, roleID string) (activity.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.lookup(orgID)
	for _, r := range st.roles {
		if r.ID == roleID {
			return withQuotaIDs(r, st.quotas), nil
		}
	}
	return activity.Role{}, fmt.Errorf("%w: role %s", roster.ErrNotFound, roleID)
}

func withQuotaIDs(r activity.Role, quotas []activity.Quota) activity.Role {
	r.QuotaIDs = nil
	for _, q := range quotas {
		for _, id := range q.RoleIDs {
			if id == r.ID {
				r.QuotaIDs = append(r.QuotaIDs, q.ID)
				break
			}
		}
	}
	return r
}

func (s *InMemory) CreateQuota(ctx context.Context, orgID string, q activity.Quota) (activity.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.org(orgID)
	for _, existing := range st.quotas {
		if existing.ID == q.ID {
			return activity.Quota{}, roster.ErrConflict
		}
	}
	for _, roleID := range q.RoleIDs {
		if !hasRole(st, roleID) {
			return activity.Quota{}, fmt.Errorf("%w: role %s", roster.ErrNotFound, roleID)
		}
	}
	q.RoleIDs = append([]string(nil), q.RoleIDs...)
	st.quotas = append(st.quotas, q)
	return q, nil
}

func (s *InMemory) ListQuotas(ctx context.Context, orgID string) ([]activity.Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneQuotas(s.lookup(orgID).quotas), nil
}

func (s *InMemory) DeleteQuota(ctx context.Context, orgID, quotaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.lookup(orgID)
	for i, q := range st.quotas {
		if q.ID == quotaID {
			st.quotas = append(st.quotas[:i:i], st.quotas[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: quota %s", roster.ErrNotFound, quotaID)
}

func (s *InMemory) AssignRole(ctx context.Context, orgID string, userID int64, roleID string) (roster.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.org(orgID)
	if !hasRole(st, roleID) {
		return roster.Assignment{}, fmt.Errorf("%w: role %s", roster.ErrNotFound, roleID)
	}
	roles, ok := st.members[userID]
	if !ok {
		roles = make(map[string]time.Time)
		st.members[userID] = roles
	}
	if _, dup := roles[roleID]; dup {
		return roster.Assignment{}, roster.ErrConflict
	}
	at := s.now()
	roles[roleID] = at
	return roster.Assignment{OrganizationID: orgID, UserID: userID, RoleID: roleID, CreatedAt: at}, nil
}

func (s *InMemory) RemoveRole(ctx context.Context, orgID string, userID int64, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.lookup(orgID)
	roles, ok := st.members[userID]
	if !ok {
		return roster.ErrNotFound
	}
	if _, ok := roles[roleID]; !ok {
		return roster.ErrNotFound
	}
	delete(roles, roleID)
	if len(roles) == 0 {
		delete(st.members, userID)
	}
	return nil
}

func (s *InMemory) ListMembers(ctx context.Context, orgID string) ([]activity.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMembers(s.lookup(orgID)), nil
}

func listMembers(st *orgState) []activity.Member {
	out := make([]activity.Member, 0, len(st.members))
	for userID, roles := range st.members {
		m := activity.Member{UserID: userID}
		for roleID := range roles {
			m.RoleIDs = append(m.RoleIDs, roleID)
		}
		sort.Strings(m.RoleIDs)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (s *InMemory) AddReset(ctx context.Context, orgID string, r activity.PeriodReset) (activity.PeriodReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.org(orgID)
	for _, prev := range st.resets {
		if !r.ResetAt.After(prev.ResetAt) {
			return activity.PeriodReset{}, fmt.Errorf("%w: a reset at %s already exists", roster.ErrConflict, prev.ResetAt.Format(time.RFC3339))
		}
	}
	st.resets = append(st.resets, r)
	return r, nil
}

func (s *InMemory) ListResets(ctx context.Context, orgID string) ([]activity.PeriodReset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]activity.PeriodReset(nil), s.lookup(orgID).resets...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ResetAt.Before(out[j].ResetAt) })
	return out, nil
}

func (s *InMemory) AddAdjustment(ctx context.Context, orgID string, a activity.Adjustment) (activity.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.org(orgID)
	st.adjustments = append(st.adjustments, a)
	return a, nil
}

func (s *InMemory) PutSettings(ctx context.Context, orgID string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.org(orgID).settings = append([]byte(nil), raw...)
	return nil
}

func (s *InMemory) GetSettings(ctx context.Context, orgID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw := s.lookup(orgID).settings
	if raw == nil {
		return nil, nil
	}
	return append([]byte(nil), raw...), nil
}

func (s *InMemory) StartSession(ctx context.Context, orgID string, ps activity.PresenceSession) (activity.PresenceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.org(orgID)
	for _, existing := range st.sessions {
		if existing.UserID == ps.UserID && existing.Open() {
			return activity.PresenceSession{}, fmt.Errorf("%w: user %d already has an open session", roster.ErrConflict, ps.UserID)
		}
	}
	ps.EndTime = nil
	st.sessions = append(st.sessions, ps)
	return ps, nil
}

func (s *InMemory) EndSession(ctx context.Context, orgID, sessionID string, end roster.SessionEnd) (activity.PresenceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.lookup(orgID)
	for i := range st.sessions {
		ps := &st.sessions[i]
		if ps.ID != sessionID {
			continue
		}
		if !ps.Open() {
			return activity.PresenceSession{}, fmt.Errorf("%w: session %s already ended", roster.ErrConflict, sessionID)
		}
		endTime := end.EndTime
		ps.EndTime = &endTime
		ps.IdleMinutes = end.IdleMinutes
		ps.MessageCount = end.MessageCount
		return cloneSession(*ps), nil
	}
	return activity.PresenceSession{}, fmt.Errorf("%w: session %s", roster.ErrNotFound, sessionID)
}

func (s *InMemory) CreateEvent(ctx context.Context, orgID string, ev activity.HostedEvent) (activity.HostedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.org(orgID)
	for _, existing := range st.events {
		if existing.ID == ev.ID {
			return activity.HostedEvent{}, roster.ErrConflict
		}
	}
	ev.Slots = append([]activity.RoleSlot(nil), ev.Slots...)
	st.events = append(st.events, ev)
	return ev, nil
}

func (s *InMemory) GetEvent(ctx context.Context, orgID, eventID string) (activity.HostedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.lookup(orgID).events {
		if ev.ID == eventID {
			ev.Slots = append([]activity.RoleSlot(nil), ev.Slots...)
			return ev, nil
		}
	}
	return activity.HostedEvent{}, fmt.Errorf("%w: event %s", roster.ErrNotFound, eventID)
}

func (s *InMemory) AddParticipation(ctx context.Context, orgID string, p activity.EventParticipation) (activity.EventParticipation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.org(orgID)
	for _, existing := range st.participations {
		if existing.EventID == p.EventID && existing.UserID == p.UserID && existing.SlotIndex == p.SlotIndex {
			return activity.EventParticipation{}, roster.ErrConflict
		}
	}
	st.participations = append(st.participations, p)
	return p, nil
}

func (s *InMemory) AddVisit(ctx context.Context, orgID string, v activity.VisitRecord) (activity.VisitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.org(orgID)
	v.ParticipantIDs = append([]int64(nil), v.ParticipantIDs...)
	st.visits = append(st.visits, v)
	return v, nil
}

// LoadSnapshot copies everything the engine reads for orgID under one read
// lock, the stored settings blob included.
func (s *InMemory) LoadSnapshot(ctx context.Context, orgID string) (activity.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.lookup(orgID)

	snap := activity.Snapshot{
		OrganizationID: orgID,
		Members:        listMembers(st),
		Quotas:         cloneQuotas(st.quotas),
		Resets:         append([]activity.PeriodReset(nil), st.resets...),
		Adjustments:    append([]activity.Adjustment(nil), st.adjustments...),
		Participations: append([]activity.EventParticipation(nil), st.participations...),
	}
	if st.settings != nil {
		snap.SettingsRaw = append([]byte(nil), st.settings...)
	}
	for _, r := range st.roles {
		snap.Roles = append(snap.Roles, withQuotaIDs(r, st.quotas))
	}
	for _, ps := range st.sessions {
		snap.Sessions = append(snap.Sessions, cloneSession(ps))
	}
	for _, ev := range st.events {
		ev.Slots = append([]activity.RoleSlot(nil), ev.Slots...)
		snap.Events = append(snap.Events, ev)
	}
	for _, v := range st.visits {
		v.ParticipantIDs = append([]int64(nil), v.ParticipantIDs...)
		snap.Visits = append(snap.Visits, v)
	}
	return snap, nil
}

func hasRole(st *orgState, roleID string) bool {
	for _, r := range st.roles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}

func cloneQuotas(in []activity.Quota) []activity.Quota {
	out := make([]activity.Quota, 0, len(in))
	for _, q := range in {
		q.RoleIDs = append([]string(nil), q.RoleIDs...)
		out = append(out, q)
	}
	return out
}

func cloneSession(ps activity.PresenceSession) activity.PresenceSession {
	if ps.EndTime != nil {
		end := *ps.EndTime
		ps.EndTime = &end
	}
	return ps
}

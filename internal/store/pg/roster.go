package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rollcall.org/internal/activity"
	"rollcall.org/internal/roster"
)

func (s *Store) CreateRole(ctx context.Context, orgID string, role activity.Role) (activity.Role, error) {
	if s.db == nil {
		return activity.Role{}, errNoDB
	}
	var out activity.Role
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, organization_id, name, is_owner_role)
		values ($1, $2, $3, $4)
		returning id, name, is_owner_role
	`, role.ID, orgID, role.Name, role.IsOwnerRole).Scan(&out.ID, &out.Name, &out.IsOwnerRole)
	if err != nil {
		return activity.Role{}, mapWriteError(err, "role "+role.Name)
	}
	return out, nil
}

const roleColumns = `
	select r.id, r.name, r.is_owner_role,
	       coalesce(json_agg(qr.quota_id order by qr.quota_id) filter (where qr.quota_id is not null), '[]')
	from roles r
	left join quota_roles qr on qr.role_id = r.id
`

func (s *Store) ListRoles(ctx context.Context, orgID string) ([]activity.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return queryRoles(ctx, s.db, orgID)
}

func queryRoles(ctx context.Context, q querier, orgID string) ([]activity.Role, error) {
	rows, err := q.QueryContext(ctx, roleColumns+`
		where r.organization_id = $1
		group by r.id, r.name, r.is_owner_role
		order by r.name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []activity.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) GetRole(ctx context.Context, orgID, roleID string) (activity.Role, error) {
	if s.db == nil {
		return activity.Role{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, roleColumns+`
		where r.organization_id = $1 and r.id = $2
		group by r.id, r.name, r.is_owner_role
	`, orgID, roleID)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Role{}, fmt.Errorf("%w: role %s", roster.ErrNotFound, roleID)
	}
	return role, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRole(sc scanner) (activity.Role, error) {
	var (
		role activity.Role
		raw  []byte
	)
	if err := sc.Scan(&role.ID, &role.Name, &role.IsOwnerRole, &raw); err != nil {
		return activity.Role{}, err
	}
	ids, err := decodeJSONList[string](raw, "role quota ids")
	if err != nil {
		return activity.Role{}, err
	}
	if len(ids) > 0 {
		role.QuotaIDs = ids
	}
	return role, nil
}

// CreateQuota stores the quota and its role scope in one transaction. Roles
// must belong to the same organization.
func (s *Store) CreateQuota(ctx context.Context, orgID string, q activity.Quota) (activity.Quota, error) {
	if s.db == nil {
		return activity.Quota{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return activity.Quota{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into quotas (id, organization_id, name, quota_type, value, session_type_filter)
		values ($1, $2, $3, $4, $5, $6)
	`, q.ID, orgID, nullIfEmpty(q.Name), string(q.Type), q.Value, nullIfEmpty(q.SessionTypeFilter)); err != nil {
		return activity.Quota{}, mapWriteError(err, "quota "+q.ID)
	}
	for _, roleID := range q.RoleIDs {
		res, err := tx.ExecContext(ctx, `
			insert into quota_roles (quota_id, role_id)
			select $1::text, id from roles where id = $2 and organization_id = $3
		`, q.ID, roleID, orgID)
		if err != nil {
			return activity.Quota{}, mapWriteError(err, "quota role "+roleID)
		}
		if n, err := res.RowsAffected(); err != nil {
			return activity.Quota{}, err
		} else if n == 0 {
			return activity.Quota{}, fmt.Errorf("%w: role %s", roster.ErrNotFound, roleID)
		}
	}
	if err := tx.Commit(); err != nil {
		return activity.Quota{}, err
	}
	return q, nil
}

func (s *Store) ListQuotas(ctx context.Context, orgID string) ([]activity.Quota, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return queryQuotas(ctx, s.db, orgID)
}

func queryQuotas(ctx context.Context, q querier, orgID string) ([]activity.Quota, error) {
	rows, err := q.QueryContext(ctx, `
		select q.id, q.name, q.quota_type, q.value, q.session_type_filter,
		       coalesce(json_agg(qr.role_id order by qr.role_id) filter (where qr.role_id is not null), '[]')
		from quotas q
		left join quota_roles qr on qr.quota_id = q.id
		where q.organization_id = $1
		group by q.id, q.name, q.quota_type, q.value, q.session_type_filter, q.created_at
		order by q.created_at, q.id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotas []activity.Quota
	for rows.Next() {
		var (
			quota  activity.Quota
			name   sql.NullString
			filter sql.NullString
			qtype  string
			raw    []byte
		)
		if err := rows.Scan(&quota.ID, &name, &qtype, &quota.Value, &filter, &raw); err != nil {
			return nil, err
		}
		quota.Name = name.String
		quota.SessionTypeFilter = filter.String
		quota.Type = activity.QuotaType(qtype)
		if quota.RoleIDs, err = decodeJSONList[string](raw, "quota role ids"); err != nil {
			return nil, err
		}
		quotas = append(quotas, quota)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return quotas, nil
}

func (s *Store) DeleteQuota(ctx context.Context, orgID, quotaID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from quotas where organization_id = $1 and id = $2`, orgID, quotaID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: quota %s", roster.ErrNotFound, quotaID)
	}
	return nil
}

func (s *Store) AssignRole(ctx context.Context, orgID string, userID int64, roleID string) (roster.Assignment, error) {
	if s.db == nil {
		return roster.Assignment{}, errNoDB
	}
	a := roster.Assignment{OrganizationID: orgID, UserID: userID, RoleID: roleID}
	err := s.db.QueryRowContext(ctx, `
		insert into member_roles (organization_id, user_id, role_id)
		select $1::text, $2::bigint, id from roles where id = $3 and organization_id = $1
		returning created_at
	`, orgID, userID, roleID).Scan(&a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.Assignment{}, fmt.Errorf("%w: role %s", roster.ErrNotFound, roleID)
	}
	if err != nil {
		return roster.Assignment{}, mapWriteError(err, "role assignment")
	}
	return a, nil
}

func (s *Store) RemoveRole(ctx context.Context, orgID string, userID int64, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from member_roles
		where organization_id = $1 and user_id = $2 and role_id = $3
	`, orgID, userID, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, orgID string) ([]activity.Member, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return queryMembers(ctx, s.db, orgID)
}

func queryMembers(ctx context.Context, q querier, orgID string) ([]activity.Member, error) {
	rows, err := q.QueryContext(ctx, `
		select user_id, json_agg(role_id order by role_id)
		from member_roles
		where organization_id = $1
		group by user_id
		order by user_id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []activity.Member
	for rows.Next() {
		var (
			m   activity.Member
			raw []byte
		)
		if err := rows.Scan(&m.UserID, &raw); err != nil {
			return nil, err
		}
		if m.RoleIDs, err = decodeJSONList[string](raw, "member role ids"); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// AddReset appends r while holding a per-organization advisory lock, so the
// latest-reset check and the insert cannot interleave with another reset.
func (s *Store) AddReset(ctx context.Context, orgID string, r activity.PeriodReset) (activity.PeriodReset, error) {
	if s.db == nil {
		return activity.PeriodReset{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return activity.PeriodReset{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock(hashtext($1))`, "period_resets:"+orgID); err != nil {
		return activity.PeriodReset{}, err
	}
	var latest sql.NullTime
	if err := tx.QueryRowContext(ctx, `
		select max(reset_at) from period_resets where organization_id = $1
	`, orgID).Scan(&latest); err != nil {
		return activity.PeriodReset{}, err
	}
	if latest.Valid && !r.ResetAt.After(latest.Time) {
		return activity.PeriodReset{}, fmt.Errorf("%w: a reset at %s already exists", roster.ErrConflict, latest.Time.UTC().Format(time.RFC3339))
	}
	if _, err := tx.ExecContext(ctx, `
		insert into period_resets (id, organization_id, reset_at, reset_by)
		values ($1, $2, $3, $4)
	`, r.ID, orgID, r.ResetAt, r.ResetBy); err != nil {
		return activity.PeriodReset{}, mapWriteError(err, "reset "+r.ID)
	}
	if err := tx.Commit(); err != nil {
		return activity.PeriodReset{}, err
	}
	return r, nil
}

func (s *Store) ListResets(ctx context.Context, orgID string) ([]activity.PeriodReset, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return queryResets(ctx, s.db, orgID)
}

func queryResets(ctx context.Context, q querier, orgID string) ([]activity.PeriodReset, error) {
	rows, err := q.QueryContext(ctx, `
		select id, reset_at, reset_by
		from period_resets
		where organization_id = $1
		order by reset_at, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resets []activity.PeriodReset
	for rows.Next() {
		var r activity.PeriodReset
		if err := rows.Scan(&r.ID, &r.ResetAt, &r.ResetBy); err != nil {
			return nil, err
		}
		resets = append(resets, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return resets, nil
}

func (s *Store) AddAdjustment(ctx context.Context, orgID string, a activity.Adjustment) (activity.Adjustment, error) {
	if s.db == nil {
		return activity.Adjustment{}, errNoDB
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into adjustments (id, organization_id, user_id, minutes, reason, created_at, created_by)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, orgID, a.UserID, a.Minutes, nullIfEmpty(a.Reason), a.CreatedAt, nullIfEmpty(a.CreatedBy)); err != nil {
		return activity.Adjustment{}, mapWriteError(err, "adjustment "+a.ID)
	}
	return a, nil
}

func (s *Store) StartSession(ctx context.Context, orgID string, ps activity.PresenceSession) (activity.PresenceSession, error) {
	if s.db == nil {
		return activity.PresenceSession{}, errNoDB
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into presence_sessions (id, organization_id, user_id, start_time)
		values ($1, $2, $3, $4)
	`, ps.ID, orgID, ps.UserID, ps.StartTime); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return activity.PresenceSession{}, fmt.Errorf("%w: user %d already has an open session", roster.ErrConflict, ps.UserID)
		}
		return activity.PresenceSession{}, err
	}
	ps.EndTime = nil
	return ps, nil
}

// EndSession closes an open session. Closing twice is a conflict.
func (s *Store) EndSession(ctx context.Context, orgID, sessionID string, end roster.SessionEnd) (activity.PresenceSession, error) {
	if s.db == nil {
		return activity.PresenceSession{}, errNoDB
	}
	var (
		ps      activity.PresenceSession
		endTime time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		update presence_sessions
		set end_time = $3, idle_minutes = $4, message_count = $5
		where organization_id = $1 and id = $2 and end_time is null
		returning id, user_id, start_time, end_time, idle_minutes, message_count
	`, orgID, sessionID, end.EndTime, end.IdleMinutes, end.MessageCount).
		Scan(&ps.ID, &ps.UserID, &ps.StartTime, &endTime, &ps.IdleMinutes, &ps.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		var closed bool
		lookup := s.db.QueryRowContext(ctx, `
			select end_time is not null from presence_sessions where organization_id = $1 and id = $2
		`, orgID, sessionID).Scan(&closed)
		if errors.Is(lookup, sql.ErrNoRows) {
			return activity.PresenceSession{}, fmt.Errorf("%w: session %s", roster.ErrNotFound, sessionID)
		}
		if lookup != nil {
			return activity.PresenceSession{}, lookup
		}
		return activity.PresenceSession{}, fmt.Errorf("%w: session %s already ended", roster.ErrConflict, sessionID)
	}
	if err != nil {
		return activity.PresenceSession{}, err
	}
	ps.EndTime = &endTime
	return ps, nil
}

func (s *Store) CreateEvent(ctx context.Context, orgID string, ev activity.HostedEvent) (activity.HostedEvent, error) {
	if s.db == nil {
		return activity.HostedEvent{}, errNoDB
	}
	slots, err := json.Marshal(nonNilSlots(ev.Slots))
	if err != nil {
		return activity.HostedEvent{}, fmt.Errorf("encode slots: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into hosted_events (id, organization_id, owner_id, event_date, event_type, slots)
		values ($1, $2, $3, $4, $5, $6)
	`, ev.ID, orgID, ev.OwnerID, ev.Date, ev.EventTypeTag, slots); err != nil {
		return activity.HostedEvent{}, mapWriteError(err, "event "+ev.ID)
	}
	return ev, nil
}

func (s *Store) GetEvent(ctx context.Context, orgID, eventID string) (activity.HostedEvent, error) {
	if s.db == nil {
		return activity.HostedEvent{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, eventColumns+` where organization_id = $1 and id = $2`, orgID, eventID)
	ev, _, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.HostedEvent{}, fmt.Errorf("%w: event %s", roster.ErrNotFound, eventID)
	}
	return ev, err
}

const eventColumns = `select id, owner_id, event_date, event_type, slots from hosted_events`

// scanEvent reads one event row. Slots that cannot be decoded leave the event
// without slots and come back as a warning instead of an error.
func scanEvent(sc scanner) (activity.HostedEvent, *activity.Warning, error) {
	var (
		ev  activity.HostedEvent
		raw []byte
	)
	if err := sc.Scan(&ev.ID, &ev.OwnerID, &ev.Date, &ev.EventTypeTag, &raw); err != nil {
		return activity.HostedEvent{}, nil, err
	}
	slots, err := decodeJSONList[activity.RoleSlot](raw, "event slots")
	if err != nil {
		return ev, &activity.Warning{
			Kind:    activity.WarnMalformedSlots,
			UserID:  ev.OwnerID,
			Subject: ev.ID,
			Detail:  err.Error(),
		}, nil
	}
	ev.Slots = slots
	return ev, nil, nil
}

func nonNilSlots(slots []activity.RoleSlot) []activity.RoleSlot {
	if slots == nil {
		return []activity.RoleSlot{}
	}
	return slots
}

func (s *Store) AddParticipation(ctx context.Context, orgID string, p activity.EventParticipation) (activity.EventParticipation, error) {
	if s.db == nil {
		return activity.EventParticipation{}, errNoDB
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into event_participations (organization_id, event_id, user_id, role_slot_id, slot_index)
		values ($1, $2, $3, $4, $5)
	`, orgID, p.EventID, p.UserID, p.RoleSlotID, p.SlotIndex); err != nil {
		return activity.EventParticipation{}, mapWriteError(err, "slot claim")
	}
	return p, nil
}

func (s *Store) AddVisit(ctx context.Context, orgID string, v activity.VisitRecord) (activity.VisitRecord, error) {
	if s.db == nil {
		return activity.VisitRecord{}, errNoDB
	}
	if v.ParticipantIDs == nil {
		v.ParticipantIDs = []int64{}
	}
	participants, err := json.Marshal(v.ParticipantIDs)
	if err != nil {
		return activity.VisitRecord{}, fmt.Errorf("encode participants: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into alliance_visits (id, organization_id, host_id, participant_ids, visited_at)
		values ($1, $2, $3, $4, $5)
	`, v.ID, orgID, v.HostID, participants, v.Time); err != nil {
		return activity.VisitRecord{}, mapWriteError(err, "visit "+v.ID)
	}
	return v, nil
}

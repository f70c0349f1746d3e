package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rollcall.org/internal/activity"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadSnapshot reads every record the engine needs for orgID inside one
// read-only repeatable-read transaction, so the report sees a consistent
// state. The settings blob is read in the same transaction and left for the
// caller to parse.
func (s *Store) LoadSnapshot(ctx context.Context, orgID string) (activity.Snapshot, error) {
	if s.db == nil {
		return activity.Snapshot{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return activity.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	snap := activity.Snapshot{OrganizationID: orgID}
	if snap.SettingsRaw, err = querySettings(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load settings: %w", err)
	}
	if snap.Members, err = queryMembers(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load members: %w", err)
	}
	if snap.Roles, err = queryRoles(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load roles: %w", err)
	}
	if snap.Quotas, err = queryQuotas(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load quotas: %w", err)
	}
	if snap.Resets, err = queryResets(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load resets: %w", err)
	}
	if snap.Adjustments, err = queryAdjustments(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load adjustments: %w", err)
	}
	if snap.Sessions, err = querySessions(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load sessions: %w", err)
	}
	if snap.Events, snap.LoadWarnings, err = queryEvents(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load events: %w", err)
	}
	if snap.Participations, err = queryParticipations(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load participations: %w", err)
	}
	if snap.Visits, err = queryVisits(ctx, tx, orgID); err != nil {
		return activity.Snapshot{}, fmt.Errorf("load visits: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return activity.Snapshot{}, err
	}
	return snap, nil
}

func queryAdjustments(ctx context.Context, q querier, orgID string) ([]activity.Adjustment, error) {
	rows, err := q.QueryContext(ctx, `
		select id, user_id, minutes, reason, created_at, created_by
		from adjustments
		where organization_id = $1
		order by created_at, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activity.Adjustment
	for rows.Next() {
		var (
			a      activity.Adjustment
			reason sql.NullString
			by     sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Minutes, &reason, &a.CreatedAt, &by); err != nil {
			return nil, err
		}
		a.Reason = reason.String
		a.CreatedBy = by.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func querySessions(ctx context.Context, q querier, orgID string) ([]activity.PresenceSession, error) {
	rows, err := q.QueryContext(ctx, `
		select id, user_id, start_time, end_time, idle_minutes, message_count
		from presence_sessions
		where organization_id = $1
		order by start_time, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activity.PresenceSession
	for rows.Next() {
		var (
			ps  activity.PresenceSession
			end sql.NullTime
		)
		if err := rows.Scan(&ps.ID, &ps.UserID, &ps.StartTime, &end, &ps.IdleMinutes, &ps.MessageCount); err != nil {
			return nil, err
		}
		if end.Valid {
			t := end.Time
			ps.EndTime = &t
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func querySettings(ctx context.Context, q querier, orgID string) ([]byte, error) {
	rows, err := q.QueryContext(ctx, `select settings from org_settings where organization_id = $1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var raw []byte
	if rows.Next() {
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
	}
	return raw, rows.Err()
}

func queryEvents(ctx context.Context, q querier, orgID string) ([]activity.HostedEvent, []activity.Warning, error) {
	rows, err := q.QueryContext(ctx, eventColumns+`
		where organization_id = $1
		order by event_date, id
	`, orgID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		out   []activity.HostedEvent
		warns []activity.Warning
	)
	for rows.Next() {
		ev, warn, err := scanEvent(rows)
		if err != nil {
			return nil, nil, err
		}
		if warn != nil {
			warns = append(warns, *warn)
		}
		out = append(out, ev)
	}
	return out, warns, rows.Err()
}

func queryParticipations(ctx context.Context, q querier, orgID string) ([]activity.EventParticipation, error) {
	rows, err := q.QueryContext(ctx, `
		select event_id, user_id, role_slot_id, slot_index
		from event_participations
		where organization_id = $1
		order by created_at, event_id, user_id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activity.EventParticipation
	for rows.Next() {
		var p activity.EventParticipation
		if err := rows.Scan(&p.EventID, &p.UserID, &p.RoleSlotID, &p.SlotIndex); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func queryVisits(ctx context.Context, q querier, orgID string) ([]activity.VisitRecord, error) {
	rows, err := q.QueryContext(ctx, `
		select id, host_id, participant_ids, visited_at
		from alliance_visits
		where organization_id = $1
		order by visited_at, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []activity.VisitRecord
	for rows.Next() {
		var (
			v   activity.VisitRecord
			raw []byte
			at  time.Time
		)
		if err := rows.Scan(&v.ID, &v.HostID, &raw, &at); err != nil {
			return nil, err
		}
		v.Time = at
		if v.ParticipantIDs, err = decodeJSONList[int64](raw, "visit participants"); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"rollcall.org/internal/activity"
)

func TestLoadSnapshot(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := at.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("from org_settings").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"settings"}).AddRow([]byte(`{"idleTimeEnabled":false}`)))
	mock.ExpectQuery("from member_roles").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role_ids"}).AddRow(int64(1), []byte(`["r1"]`)))
	mock.ExpectQuery("from roles r").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "is_owner_role", "quota_ids"}).
			AddRow("r1", "Staff", false, []byte(`["q1"]`)).
			AddRow("r2", "Owner", true, []byte(`[]`)))
	mock.ExpectQuery("from quotas q").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "quota_type", "value", "session_type_filter", "role_ids"}).
			AddRow("q1", nil, "mins", 60.0, nil, []byte(`["r1"]`)))
	mock.ExpectQuery("from period_resets").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reset_at", "reset_by"}).AddRow("p1", at.Add(-time.Hour), "9"))
	mock.ExpectQuery("from adjustments").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "minutes", "reason", "created_at", "created_by"}).
			AddRow("a1", int64(1), int64(-20), "late", at, nil))
	mock.ExpectQuery("from presence_sessions").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "start_time", "end_time", "idle_minutes", "message_count"}).
			AddRow("s1", int64(1), at, end, 10.0, int64(4)).
			AddRow("s2", int64(2), at, nil, 3.0, int64(1)))
	mock.ExpectQuery("from hosted_events").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "event_date", "event_type", "slots"}).
			AddRow("e1", int64(1), at, "shift", []byte(`[{"id":"a","name":"Host","kind":"host"},{"id":"b","name":"Co-Host"}]`)))
	mock.ExpectQuery("from event_participations").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "user_id", "role_slot_id", "slot_index"}).AddRow("e1", int64(2), "b", 1))
	mock.ExpectQuery("from alliance_visits").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "host_id", "participant_ids", "visited_at"}).AddRow("v1", int64(1), []byte(`[2,3]`), at))
	mock.ExpectCommit()

	snap, err := s.LoadSnapshot(context.Background(), "org")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	expectationsMet(t, mock)

	if string(snap.SettingsRaw) != `{"idleTimeEnabled":false}` || len(snap.LoadWarnings) != 0 {
		t.Fatalf("unexpected settings or warnings: %s %+v", snap.SettingsRaw, snap.LoadWarnings)
	}
	if snap.OrganizationID != "org" || len(snap.Members) != 1 || snap.Members[0].RoleIDs[0] != "r1" {
		t.Fatalf("unexpected members: %+v", snap.Members)
	}
	if len(snap.Roles) != 2 || snap.Roles[1].QuotaIDs != nil || !snap.Roles[1].IsOwnerRole {
		t.Fatalf("unexpected roles: %+v", snap.Roles)
	}
	if len(snap.Quotas) != 1 || snap.Quotas[0].Type != activity.QuotaMinutes || snap.Quotas[0].Name != "" {
		t.Fatalf("unexpected quotas: %+v", snap.Quotas)
	}
	if len(snap.Adjustments) != 1 || snap.Adjustments[0].Minutes != -20 || snap.Adjustments[0].CreatedBy != "" {
		t.Fatalf("unexpected adjustments: %+v", snap.Adjustments)
	}
	if len(snap.Sessions) != 2 || snap.Sessions[0].Open() || !snap.Sessions[1].Open() {
		t.Fatalf("unexpected sessions: %+v", snap.Sessions)
	}
	if len(snap.Events) != 1 || len(snap.Events[0].Slots) != 2 || snap.Events[0].Slots[0].Kind != activity.RoleKindHost {
		t.Fatalf("unexpected events: %+v", snap.Events)
	}
	if len(snap.Participations) != 1 || snap.Participations[0].SlotIndex != 1 {
		t.Fatalf("unexpected participations: %+v", snap.Participations)
	}
	if len(snap.Visits) != 1 || len(snap.Visits[0].ParticipantIDs) != 2 {
		t.Fatalf("unexpected visits: %+v", snap.Visits)
	}

	report := activity.Run(activity.Snapshot{
		OrganizationID: snap.OrganizationID,
		Settings:       activity.DefaultSettings(),
		Members:        snap.Members,
		Roles:          snap.Roles,
		Quotas:         snap.Quotas,
		Sessions:       snap.Sessions,
		Adjustments:    snap.Adjustments,
		Resets:         snap.Resets,
		Events:         snap.Events,
		Participations: snap.Participations,
		Visits:         snap.Visits,
	}, at.Add(2*time.Hour))
	row, ok := report.Member(2)
	if !ok || !row.Orphan || row.Metrics.SessionsHosted != 1 {
		t.Fatalf("co-host orphan not credited from loaded snapshot: %+v", row)
	}
}

func TestLoadSnapshotMalformedSlotsWarn(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("from org_settings").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"settings"}))
	mock.ExpectQuery("from member_roles").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role_ids"}))
	mock.ExpectQuery("from roles r").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "is_owner_role", "quota_ids"}))
	mock.ExpectQuery("from quotas q").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "quota_type", "value", "session_type_filter", "role_ids"}))
	mock.ExpectQuery("from period_resets").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reset_at", "reset_by"}))
	mock.ExpectQuery("from adjustments").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "minutes", "reason", "created_at", "created_by"}))
	mock.ExpectQuery("from presence_sessions").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "start_time", "end_time", "idle_minutes", "message_count"}))
	mock.ExpectQuery("from hosted_events").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "event_date", "event_type", "slots"}).
			AddRow("e1", int64(1), at, "shift", []byte(`[{"id":7,"name":"Co-Host"}]`)).
			AddRow("e2", int64(1), at.Add(time.Hour), "shift", []byte(`{"slots":"none"}`)).
			AddRow("e3", int64(2), at.Add(2*time.Hour), "training", []byte(`[]`)))
	mock.ExpectQuery("from event_participations").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "user_id", "role_slot_id", "slot_index"}).AddRow("e1", int64(3), "7", 0))
	mock.ExpectQuery("from alliance_visits").WithArgs("org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "host_id", "participant_ids", "visited_at"}))
	mock.ExpectCommit()

	snap, err := s.LoadSnapshot(context.Background(), "org")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	expectationsMet(t, mock)

	if snap.SettingsRaw != nil {
		t.Fatalf("expected no settings blob, got %s", snap.SettingsRaw)
	}
	if len(snap.Events) != 3 || snap.Events[0].Slots != nil || snap.Events[1].Slots != nil {
		t.Fatalf("malformed events should be kept without slots: %+v", snap.Events)
	}
	if len(snap.LoadWarnings) != 2 {
		t.Fatalf("expected two warnings, got %+v", snap.LoadWarnings)
	}
	for i, id := range []string{"e1", "e2"} {
		w := snap.LoadWarnings[i]
		if w.Kind != activity.WarnMalformedSlots || w.Subject != id || w.UserID != 1 {
			t.Fatalf("unexpected warning %d: %+v", i, w)
		}
	}

	snap.Settings = activity.DefaultSettings()
	report := activity.Run(snap, at.Add(3*time.Hour))
	owner, ok := report.Member(1)
	if !ok || owner.Metrics.SessionsHosted != 2 {
		t.Fatalf("owner should keep credit for events with malformed slots: %+v", owner)
	}
	guest, ok := report.Member(3)
	if !ok || guest.Metrics.SessionsAttended != 1 {
		t.Fatalf("participant on an event with malformed slots should attend: %+v", guest)
	}
	malformed := 0
	for _, w := range report.Warnings {
		if w.Kind == activity.WarnMalformedSlots {
			malformed++
		}
	}
	if malformed != 2 {
		t.Fatalf("load warnings missing from report: %+v", report.Warnings)
	}
}

func TestLoadSnapshotRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("from org_settings").WithArgs("org").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if _, err := s.LoadSnapshot(context.Background(), "org"); err == nil {
		t.Fatal("expected error")
	}
	expectationsMet(t, mock)
}

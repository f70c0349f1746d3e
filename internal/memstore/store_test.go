package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rollcall.org/internal/activity"
	"rollcall.org/internal/roster"
)

func TestRolesAndQuotaBackReferences(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.CreateRole(ctx, "org", activity.Role{ID: "r1", Name: "Staff"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateRole(ctx, "org", activity.Role{ID: "r2", Name: "Staff"}); !errors.Is(err, roster.ErrConflict) {
		t.Fatalf("expected conflict on duplicate name, got %v", err)
	}
	if _, err := s.CreateQuota(ctx, "org", activity.Quota{ID: "q1", Type: activity.QuotaMinutes, Value: 60, RoleIDs: []string{"r1"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateQuota(ctx, "org", activity.Quota{ID: "q2", Type: activity.QuotaMinutes, Value: 60, RoleIDs: []string{"missing"}}); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected not found for unknown role, got %v", err)
	}

	role, err := s.GetRole(ctx, "org", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(role.QuotaIDs) != 1 || role.QuotaIDs[0] != "q1" {
		t.Fatalf("unexpected quota ids: %v", role.QuotaIDs)
	}

	if err := s.DeleteQuota(ctx, "org", "q1"); err != nil {
		t.Fatal(err)
	}
	role, _ = s.GetRole(ctx, "org", "r1")
	if len(role.QuotaIDs) != 0 {
		t.Fatalf("deleted quota still referenced: %v", role.QuotaIDs)
	}
	if err := s.DeleteQuota(ctx, "org", "q1"); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrganizationsAreIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.CreateRole(ctx, "a", activity.Role{ID: "r1", Name: "Staff"})
	_, _ = s.AssignRole(ctx, "a", 7, "r1")

	members, err := s.ListMembers(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 0 {
		t.Fatalf("organization b sees members of a: %v", members)
	}
	if _, err := s.AssignRole(ctx, "b", 7, "r1"); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected role of a to be invisible in b, got %v", err)
	}
}

func TestAssignAndRemoveRole(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.CreateRole(ctx, "org", activity.Role{ID: "r1", Name: "Staff"})
	_, _ = s.CreateRole(ctx, "org", activity.Role{ID: "r2", Name: "Trainer"})

	if _, err := s.AssignRole(ctx, "org", 3, "r2"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AssignRole(ctx, "org", 3, "r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AssignRole(ctx, "org", 3, "r1"); !errors.Is(err, roster.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	members, _ := s.ListMembers(ctx, "org")
	if len(members) != 1 || len(members[0].RoleIDs) != 2 || members[0].RoleIDs[0] != "r1" {
		t.Fatalf("unexpected members: %+v", members)
	}

	if err := s.RemoveRole(ctx, "org", 3, "r1"); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveRole(ctx, "org", 3, "r2"); err != nil {
		t.Fatal(err)
	}
	members, _ = s.ListMembers(ctx, "org")
	if len(members) != 0 {
		t.Fatalf("member without roles should leave the roster: %+v", members)
	}
	if err := s.RemoveRole(ctx, "org", 3, "r2"); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := s.StartSession(ctx, "org", activity.PresenceSession{ID: "s1", UserID: 1, StartTime: start}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StartSession(ctx, "org", activity.PresenceSession{ID: "s2", UserID: 1, StartTime: start}); !errors.Is(err, roster.ErrConflict) {
		t.Fatalf("expected conflict for second open session, got %v", err)
	}

	ended, err := s.EndSession(ctx, "org", "s1", roster.SessionEnd{EndTime: start.Add(time.Hour), IdleMinutes: 5, MessageCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	if ended.Open() || ended.IdleMinutes != 5 || ended.MessageCount != 3 {
		t.Fatalf("unexpected ended session: %+v", ended)
	}
	if _, err := s.EndSession(ctx, "org", "s1", roster.SessionEnd{EndTime: start.Add(2 * time.Hour)}); !errors.Is(err, roster.ErrConflict) {
		t.Fatalf("expected conflict on double end, got %v", err)
	}
	if _, err := s.EndSession(ctx, "org", "nope", roster.SessionEnd{}); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	raw, err := s.GetSettings(ctx, "org")
	if err != nil || raw != nil {
		t.Fatalf("expected nil settings, got %q err=%v", raw, err)
	}
	blob := []byte(`{"idleTimeEnabled":false}`)
	if err := s.PutSettings(ctx, "org", blob); err != nil {
		t.Fatal(err)
	}
	blob[0] = 'x'
	raw, _ = s.GetSettings(ctx, "org")
	if string(raw) != `{"idleTimeEnabled":false}` {
		t.Fatalf("stored settings aliased caller buffer: %q", raw)
	}
}

func TestLoadSnapshotIsDetached(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	_, _ = s.CreateRole(ctx, "org", activity.Role{ID: "r1", Name: "Staff"})
	_, _ = s.AssignRole(ctx, "org", 1, "r1")
	_, _ = s.CreateQuota(ctx, "org", activity.Quota{ID: "q1", Type: activity.QuotaAllianceVisits, Value: 1, RoleIDs: []string{"r1"}})
	_, _ = s.CreateEvent(ctx, "org", activity.HostedEvent{ID: "e1", OwnerID: 1, Date: at, Slots: []activity.RoleSlot{{ID: "a", Name: "Host"}}})
	_, _ = s.AddParticipation(ctx, "org", activity.EventParticipation{UserID: 2, EventID: "e1", RoleSlotID: "a"})
	_, _ = s.AddVisit(ctx, "org", activity.VisitRecord{ID: "v1", HostID: 1, ParticipantIDs: []int64{2}, Time: at})
	_ = s.PutSettings(ctx, "org", []byte(`{"idleTimeEnabled":false}`))

	snap, err := s.LoadSnapshot(ctx, "org")
	if err != nil {
		t.Fatal(err)
	}
	if string(snap.SettingsRaw) != `{"idleTimeEnabled":false}` {
		t.Fatalf("settings blob missing from snapshot: %s", snap.SettingsRaw)
	}
	if snap.OrganizationID != "org" || len(snap.Members) != 1 || len(snap.Events) != 1 || len(snap.Visits) != 1 || len(snap.Participations) != 1 {
		t.Fatalf("incomplete snapshot: %+v", snap)
	}
	if len(snap.Roles) != 1 || len(snap.Roles[0].QuotaIDs) != 1 {
		t.Fatalf("roles missing quota ids: %+v", snap.Roles)
	}

	snap.Events[0].Slots[0].Name = "changed"
	snap.Visits[0].ParticipantIDs[0] = 99
	snap.SettingsRaw[0] = '['
	again, _ := s.LoadSnapshot(ctx, "org")
	if again.Events[0].Slots[0].Name != "Host" || again.Visits[0].ParticipantIDs[0] != 2 || again.SettingsRaw[0] != '{' {
		t.Fatal("snapshot mutation leaked into the store")
	}
}

func TestConcurrentWritesAndSnapshots(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = s.AddVisit(ctx, "org", activity.VisitRecord{HostID: int64(i + 1), Time: at})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.LoadSnapshot(ctx, "org")
		}()
	}
	wg.Wait()

	snap, _ := s.LoadSnapshot(ctx, "org")
	if len(snap.Visits) != n {
		t.Fatalf("expected %d visits, got %d", n, len(snap.Visits))
	}
}

package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	t0  = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	win = Window{Start: t0.Add(-24 * time.Hour), End: t0.Add(30 * 24 * time.Hour)}
)

func at(d time.Duration) time.Time { return t0.Add(d) }

func endAt(d time.Duration) *time.Time {
	t := t0.Add(d)
	return &t
}

func closed(user int64, start, length time.Duration, idle float64, msgs int64) PresenceSession {
	return PresenceSession{
		UserID:       user,
		StartTime:    at(start),
		EndTime:      endAt(start + length),
		IdleMinutes:  idle,
		MessageCount: msgs,
	}
}

func TestAggregateIdleSubtractionWithAdjustment(t *testing.T) {
	in := AggregateInput{
		Settings: DefaultSettings(),
		Sessions: []PresenceSession{
			closed(1, 0, 60*time.Minute, 10, 4),
			closed(1, 2*time.Hour, 30*time.Minute, 5, 1),
		},
		Adjustments: []Adjustment{{UserID: 1, Minutes: -20, CreatedAt: at(time.Hour)}},
	}

	m, warns := Aggregate(1, win, in)
	require.Empty(t, warns)
	require.InDelta(t, 90, m.RawMinutes, 1e-9)
	require.InDelta(t, 15, m.IdleMinutes, 1e-9)
	require.Equal(t, int64(-20), m.AdjustmentMinutes)
	require.InDelta(t, 55, m.ActiveMinutes, 1e-9)
	require.Equal(t, int64(5), m.MessageCount)
}

func TestAggregateIdleDisabledKeepsRawMinutes(t *testing.T) {
	st := DefaultSettings()
	st.IdleTimeEnabled = false
	in := AggregateInput{
		Settings:    st,
		Sessions:    []PresenceSession{closed(1, 0, 60*time.Minute, 45, 0)},
		Adjustments: []Adjustment{{UserID: 1, Minutes: 10, CreatedAt: at(0)}},
	}
	m, _ := Aggregate(1, win, in)
	require.InDelta(t, 70, m.ActiveMinutes, 1e-9)
	require.InDelta(t, 45, m.IdleMinutes, 1e-9)
}

func TestAggregateIdleFloorAppliesBeforeAdjustments(t *testing.T) {
	in := AggregateInput{
		Settings:    DefaultSettings(),
		Sessions:    []PresenceSession{closed(1, 0, 10*time.Minute, 30, 0)},
		Adjustments: []Adjustment{{UserID: 1, Minutes: -25, CreatedAt: at(0)}},
	}
	m, _ := Aggregate(1, win, in)
	// max(0, 10-30) + (-25)
	require.InDelta(t, -25, m.ActiveMinutes, 1e-9)
}

func TestAggregateOpenSessions(t *testing.T) {
	sessions := []PresenceSession{
		closed(1, 0, 30*time.Minute, 0, 2),
		{UserID: 1, StartTime: at(time.Hour), IdleMinutes: 7, MessageCount: 3},
	}

	t.Run("included", func(t *testing.T) {
		m, _ := Aggregate(1, win, AggregateInput{Settings: DefaultSettings(), Sessions: sessions})
		require.InDelta(t, 30, m.RawMinutes, 1e-9)
		require.InDelta(t, 7, m.IdleMinutes, 1e-9)
		require.Equal(t, int64(5), m.MessageCount)
		require.InDelta(t, 23, m.ActiveMinutes, 1e-9)
	})

	t.Run("excluded", func(t *testing.T) {
		st := DefaultSettings()
		st.IncludeOpenSessions = false
		m, _ := Aggregate(1, win, AggregateInput{Settings: st, Sessions: sessions})
		require.InDelta(t, 30, m.RawMinutes, 1e-9)
		require.Zero(t, m.IdleMinutes)
		require.Equal(t, int64(2), m.MessageCount)
	})
}

func TestAggregateWindowFiltersByDefiningTimestamp(t *testing.T) {
	narrow := Window{Start: t0, End: at(time.Hour)}
	in := AggregateInput{
		Settings: DefaultSettings(),
		Sessions: []PresenceSession{
			closed(1, -2*time.Hour, 3*time.Hour, 0, 0), // starts before the window
			closed(1, 0, 90*time.Minute, 0, 0),         // starts at the boundary
		},
		Adjustments: []Adjustment{
			{UserID: 1, Minutes: 100, CreatedAt: at(-time.Minute)},
			{UserID: 1, Minutes: 5, CreatedAt: at(time.Hour)},
		},
		Visits: []VisitRecord{
			{HostID: 1, Time: at(2 * time.Hour)},
			{HostID: 2, ParticipantIDs: []int64{1}, Time: at(30 * time.Minute)},
		},
	}
	m, _ := Aggregate(1, narrow, in)
	require.InDelta(t, 90, m.RawMinutes, 1e-9)
	require.Equal(t, int64(5), m.AdjustmentMinutes)
	require.Equal(t, 1, m.AllianceVisits)
}

func TestAggregateNegativeDurationIsWarnedAndIgnored(t *testing.T) {
	s := closed(1, time.Hour, -30*time.Minute, 0, 0)
	s.ID = "bad"
	m, warns := Aggregate(1, win, AggregateInput{Settings: DefaultSettings(), Sessions: []PresenceSession{s}})
	require.Zero(t, m.RawMinutes)
	require.Len(t, warns, 1)
	require.Equal(t, WarnNegativeDuration, warns[0].Kind)
}

func TestAggregateOwnerParticipationIsNotDoubleCounted(t *testing.T) {
	events := []HostedEvent{
		{ID: "e1", OwnerID: 1, Date: at(time.Hour), EventTypeTag: "shift", Slots: []RoleSlot{{ID: "s0", Name: "Guard"}}},
	}
	parts := []EventParticipation{{UserID: 1, EventID: "e1", RoleSlotID: "s0", SlotIndex: 0}}

	m, warns := Aggregate(1, win, AggregateInput{Settings: DefaultSettings(), Events: events, Participations: parts})
	require.Empty(t, warns)
	require.Equal(t, 1, m.SessionsHosted)
	require.Equal(t, 0, m.SessionsAttended)
	require.Equal(t, 1, m.SessionsLogged)
	require.Equal(t, SessionCounts{Hosted: 1, Logged: 1}, m.ByCategory["shift"])
}

func TestAggregateCoHostHeuristic(t *testing.T) {
	events := []HostedEvent{
		{ID: "own", OwnerID: 1, Date: at(time.Hour), EventTypeTag: "training", Slots: []RoleSlot{{ID: "a", Name: "CO-HOST"}}},
		{ID: "other", OwnerID: 2, Date: at(2 * time.Hour), EventTypeTag: "training", Slots: []RoleSlot{{ID: "b", Name: "Co-Host"}, {ID: "c", Name: "Helper"}}},
		{ID: "legacy", OwnerID: 3, Date: at(3 * time.Hour), EventTypeTag: "event"},
	}
	parts := []EventParticipation{
		{UserID: 1, EventID: "own", RoleSlotID: "a"},
		{UserID: 1, EventID: "other", RoleSlotID: "b"},
		{UserID: 1, EventID: "legacy", RoleSlotID: "event-co-host-slot"},
	}

	m, warns := Aggregate(1, win, AggregateInput{Settings: DefaultSettings(), Events: events, Participations: parts})
	require.Empty(t, warns)
	// owned + co-host on own event + co-host elsewhere + legacy slot id match
	require.Equal(t, 4, m.SessionsHosted)
	require.Equal(t, 0, m.SessionsAttended)
	require.Equal(t, 3, m.SessionsLogged)
}

func TestAggregateTaggedSlotKindsWin(t *testing.T) {
	events := []HostedEvent{
		{ID: "e1", OwnerID: 2, Date: at(time.Hour), EventTypeTag: "shift", Slots: []RoleSlot{
			{ID: "x", Name: "co-host (retired)", Kind: RoleKindParticipant},
			{ID: "y", Name: "Lead", Kind: RoleKindCoHost},
		}},
		{ID: "e2", OwnerID: 2, Date: at(2 * time.Hour), EventTypeTag: "shift", Slots: []RoleSlot{
			{ID: "h", Name: "Host", Kind: RoleKindHost},
		}},
	}
	parts := []EventParticipation{
		{UserID: 1, EventID: "e1", RoleSlotID: "x"},
		{UserID: 3, EventID: "e1", RoleSlotID: "y"},
		{UserID: 1, EventID: "e2", RoleSlotID: "h"},
		{UserID: 2, EventID: "e2", RoleSlotID: "h"},
	}
	in := AggregateInput{Settings: DefaultSettings(), Events: events, Participations: parts}

	m1, _ := Aggregate(1, win, in)
	require.Equal(t, 1, m1.SessionsAttended)
	require.Equal(t, 1, m1.SessionsHosted)

	m3, _ := Aggregate(3, win, in)
	require.Equal(t, 1, m3.SessionsHosted)
	require.Equal(t, 0, m3.SessionsAttended)

	owner, _ := Aggregate(2, win, in)
	require.Equal(t, 2, owner.SessionsHosted)
	require.Equal(t, 2, owner.SessionsLogged)
}

func TestAggregateUnknownCategoryCountsOnlyUnfiltered(t *testing.T) {
	events := []HostedEvent{
		{ID: "e1", OwnerID: 1, Date: at(time.Hour), EventTypeTag: "Shift"},
		{ID: "e2", OwnerID: 1, Date: at(2 * time.Hour), EventTypeTag: "raid"},
	}
	in := AggregateInput{Settings: DefaultSettings(), Events: events}

	m, warns := Aggregate(1, win, in)
	require.Equal(t, 2, m.SessionsHosted)
	require.Equal(t, 1, m.ByCategory["shift"].Hosted)
	require.NotContains(t, m.ByCategory, "raid")
	require.Len(t, warns, 1)
	require.Equal(t, WarnUnknownCategory, warns[0].Kind)

	in.SessionTypeFilter = "shift"
	filtered, _ := Aggregate(1, win, in)
	require.Equal(t, 1, filtered.SessionsHosted)
	require.Equal(t, 1, filtered.SessionsLogged)

	in.SessionTypeFilter = "raid"
	none, _ := Aggregate(1, win, in)
	require.Equal(t, 0, none.SessionsHosted)
}

func TestAggregateSlotIntegrityWarnings(t *testing.T) {
	events := []HostedEvent{
		{ID: "e1", OwnerID: 2, Date: at(time.Hour), EventTypeTag: "shift", Slots: []RoleSlot{{ID: "a", Name: "Guard"}}},
		{ID: "e2", OwnerID: 2, Date: at(2 * time.Hour), EventTypeTag: "shift", Slots: []RoleSlot{{ID: "b", Name: "Guard", Kind: "captain"}}},
	}
	parts := []EventParticipation{
		{UserID: 1, EventID: "e1", SlotIndex: 5},
		{UserID: 1, EventID: "e2", SlotIndex: 0},
		{UserID: 1, EventID: "missing", SlotIndex: 0},
	}
	m, warns := Aggregate(1, win, AggregateInput{Settings: DefaultSettings(), Events: events, Participations: parts})
	require.Equal(t, 2, m.SessionsAttended)

	kinds := make([]WarningKind, 0, len(warns))
	for _, w := range warns {
		kinds = append(kinds, w.Kind)
	}
	require.ElementsMatch(t, []WarningKind{WarnSlotIndexOutOfRange, WarnUnknownSlotKind, WarnUnknownEvent}, kinds)
}

func TestAggregateAllianceVisitsCountOncePerVisit(t *testing.T) {
	visits := []VisitRecord{
		{HostID: 1, ParticipantIDs: []int64{1, 2}, Time: at(0)},
		{HostID: 3, ParticipantIDs: []int64{1}, Time: at(time.Hour)},
		{HostID: 3, ParticipantIDs: []int64{2}, Time: at(time.Hour)},
	}
	m, _ := Aggregate(1, win, AggregateInput{Settings: DefaultSettings(), Visits: visits})
	require.Equal(t, 2, m.AllianceVisits)
}

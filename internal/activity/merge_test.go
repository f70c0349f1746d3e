package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeFullOuterJoin(t *testing.T) {
	roster := []Member{
		{UserID: 3, RoleIDs: []string{"staff"}},
		{UserID: 1, RoleIDs: []string{"staff", "staff", "lead"}},
		{UserID: 4},
	}
	merged := Merge(roster, []int64{2, 1, 4, 2})

	require.Equal(t, []MergedMember{
		{UserID: 1, RoleIDs: []string{"staff", "lead"}},
		{UserID: 2, Orphan: true},
		{UserID: 3, RoleIDs: []string{"staff"}},
		{UserID: 4, Orphan: true},
	}, merged)
}

func TestMergeRosterOnlyMembersHaveZeroActivityRows(t *testing.T) {
	merged := Merge([]Member{{UserID: 9, RoleIDs: []string{"staff"}}}, nil)
	require.Len(t, merged, 1)
	require.False(t, merged[0].Orphan)
}

func TestActiveUserIDsHonoursWindow(t *testing.T) {
	narrow := Window{Start: t0, End: at(time.Hour)}
	snap := Snapshot{
		Sessions: []PresenceSession{
			{UserID: 1, StartTime: at(10 * time.Minute)},
			{UserID: 2, StartTime: at(-time.Hour)},
		},
		Adjustments: []Adjustment{{UserID: 3, CreatedAt: at(time.Hour)}},
		Events: []HostedEvent{
			{ID: "in", OwnerID: 4, Date: at(time.Minute)},
			{ID: "out", OwnerID: 5, Date: at(2 * time.Hour)},
		},
		Participations: []EventParticipation{
			{UserID: 6, EventID: "in"},
			{UserID: 7, EventID: "out"},
			{UserID: 8, EventID: "gone"},
		},
		Visits: []VisitRecord{{HostID: 9, ParticipantIDs: []int64{10}, Time: t0}},
	}
	require.Equal(t, []int64{1, 3, 4, 6, 9, 10}, ActiveUserIDs(snap, narrow))
}

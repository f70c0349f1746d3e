package activity

import "sort"

// MergedMember is one row of the merged roster.
type MergedMember struct {
	UserID  int64
	RoleIDs []string
	// Orphan marks a user seen only in activity records, without a current role.
	Orphan bool
}

// Merge full-outer-joins the roster against user ids seen in activity.
// Roster entries without roles do not count as rostered; they appear only
// when they also have activity, as orphans. Each user id appears once and
// the result is ordered by user id.
func Merge(roster []Member, activityUserIDs []int64) []MergedMember {
	rows := make(map[int64]*MergedMember, len(roster)+len(activityUserIDs))
	for _, m := range roster {
		roles := dedupeStrings(m.RoleIDs)
		if len(roles) == 0 {
			continue
		}
		if row, ok := rows[m.UserID]; ok {
			row.RoleIDs = dedupeStrings(append(row.RoleIDs, roles...))
			continue
		}
		rows[m.UserID] = &MergedMember{UserID: m.UserID, RoleIDs: roles}
	}
	for _, id := range activityUserIDs {
		if _, ok := rows[id]; ok {
			continue
		}
		rows[id] = &MergedMember{UserID: id, Orphan: true}
	}

	out := make([]MergedMember, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ActiveUserIDs lists every user id that has a record inside w: session
// starts, adjustments, owned events, participations in windowed events and
// visits as host or participant.
func ActiveUserIDs(snap Snapshot, w Window) []int64 {
	seen := make(map[int64]struct{})
	add := func(id int64) { seen[id] = struct{}{} }

	for _, s := range snap.Sessions {
		if w.Contains(s.StartTime) {
			add(s.UserID)
		}
	}
	for _, a := range snap.Adjustments {
		if w.Contains(a.CreatedAt) {
			add(a.UserID)
		}
	}
	events := indexEvents(snap.Events)
	for _, ev := range snap.Events {
		if w.Contains(ev.Date) {
			add(ev.OwnerID)
		}
	}
	for _, p := range snap.Participations {
		if ev, ok := events[p.EventID]; ok && w.Contains(ev.Date) {
			add(p.UserID)
		}
	}
	for _, v := range snap.Visits {
		if !w.Contains(v.Time) {
			continue
		}
		add(v.HostID)
		for _, id := range v.ParticipantIDs {
			add(id)
		}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

package activity

import (
	"fmt"
	"slices"
)

// AggregateInput holds the raw records folded into one member's metrics.
// Records that belong to other members are ignored, so callers may pass
// either the whole organization or a pre-partitioned subset. Events must
// include every event referenced by the participations.
type AggregateInput struct {
	Settings       Settings
	Sessions       []PresenceSession
	Adjustments    []Adjustment
	Events         []HostedEvent
	Participations []EventParticipation
	Visits         []VisitRecord

	// SessionTypeFilter restricts the hosted/attended/logged totals to one
	// category. Uncategorized events never match a filter.
	SessionTypeFilter string

	events map[string]HostedEvent
}

func (in AggregateInput) eventIndex() map[string]HostedEvent {
	if in.events != nil {
		return in.events
	}
	return indexEvents(in.Events)
}

func indexEvents(events []HostedEvent) map[string]HostedEvent {
	idx := make(map[string]HostedEvent, len(events))
	for _, ev := range events {
		idx[ev.ID] = ev
	}
	return idx
}

// Aggregate folds the records of userID inside w into MemberMetrics.
// It has no side effects; tolerated data problems come back as warnings.
func Aggregate(userID int64, w Window, in AggregateInput) (MemberMetrics, []Warning) {
	var (
		m     = MemberMetrics{ByCategory: map[string]SessionCounts{}}
		warns []Warning
	)

	m.RawMinutes, m.IdleMinutes, m.MessageCount, warns = foldSessions(userID, w, in.Settings, in.Sessions, warns)
	for _, a := range in.Adjustments {
		if a.UserID == userID && w.Contains(a.CreatedAt) {
			m.AdjustmentMinutes += a.Minutes
		}
	}
	m.ActiveMinutes = m.RawMinutes
	if in.Settings.IdleTimeEnabled {
		m.ActiveMinutes = max(0, m.RawMinutes-m.IdleMinutes)
	}
	// Adjustments bypass the idle toggle and are not floored.
	m.ActiveMinutes += float64(m.AdjustmentMinutes)

	warns = foldEvents(userID, w, in, &m, warns)

	for _, v := range in.Visits {
		if !w.Contains(v.Time) {
			continue
		}
		if v.HostID == userID || slices.Contains(v.ParticipantIDs, userID) {
			m.AllianceVisits++
		}
	}
	if len(m.ByCategory) == 0 {
		m.ByCategory = nil
	}
	return m, warns
}

func foldSessions(userID int64, w Window, st Settings, sessions []PresenceSession, warns []Warning) (raw, idle float64, msgs int64, _ []Warning) {
	for _, s := range sessions {
		if s.UserID != userID || !w.Contains(s.StartTime) {
			continue
		}
		if s.Open() {
			if st.IncludeOpenSessions {
				idle += s.IdleMinutes
				msgs += s.MessageCount
			}
			continue
		}
		d := s.EndTime.Sub(s.StartTime).Minutes()
		if d < 0 {
			warns = append(warns, Warning{
				Kind:    WarnNegativeDuration,
				UserID:  userID,
				Subject: s.ID,
				Detail:  fmt.Sprintf("session ends %.2f minutes before it starts", -d),
			})
			d = 0
		}
		raw += d
		idle += s.IdleMinutes
		msgs += s.MessageCount
	}
	return raw, idle, msgs, warns
}

type eventCredit struct {
	category string
	known    bool
}

func foldEvents(userID int64, w Window, in AggregateInput, m *MemberMetrics, warns []Warning) []Warning {
	st := in.Settings
	filter := normalizeTag(in.SessionTypeFilter)
	counts := func(c eventCredit) bool { return filter == "" || (c.known && c.category == filter) }
	bump := func(c eventCredit, fn func(*SessionCounts)) {
		if !c.known {
			return
		}
		sc := m.ByCategory[c.category]
		fn(&sc)
		m.ByCategory[c.category] = sc
	}
	classify := func(ev HostedEvent) eventCredit {
		cat, known := st.Category(ev.EventTypeTag)
		if !known {
			warns = append(warns, Warning{
				Kind:    WarnUnknownCategory,
				Subject: ev.ID,
				Detail:  fmt.Sprintf("event type %q is not a known category", ev.EventTypeTag),
			})
		}
		return eventCredit{category: cat, known: known}
	}

	owned := make(map[string]eventCredit)
	for _, ev := range in.Events {
		if ev.OwnerID != userID || !w.Contains(ev.Date) {
			continue
		}
		if _, dup := owned[ev.ID]; dup {
			continue
		}
		c := classify(ev)
		owned[ev.ID] = c
		if counts(c) {
			m.SessionsHosted++
		}
		bump(c, func(sc *SessionCounts) { sc.Hosted++ })
	}

	events := in.eventIndex()
	touched := make(map[string]eventCredit, len(owned))
	for id, c := range owned {
		touched[id] = c
	}
	for _, p := range in.Participations {
		if p.UserID != userID {
			continue
		}
		ev, ok := events[p.EventID]
		if !ok {
			warns = append(warns, Warning{
				Kind:    WarnUnknownEvent,
				UserID:  userID,
				Subject: p.EventID,
				Detail:  "participation references an event that does not exist",
			})
			continue
		}
		if !w.Contains(ev.Date) {
			continue
		}
		c, isOwner := owned[ev.ID]
		if !isOwner {
			c = classify(ev)
		}
		touched[ev.ID] = c

		slot, slotWarns := resolveSlot(ev, p)
		warns = append(warns, slotWarns...)
		switch EffectiveKind(slot) {
		case RoleKindCoHost:
			if counts(c) {
				m.SessionsHosted++
			}
			bump(c, func(sc *SessionCounts) { sc.Hosted++ })
		case RoleKindHost:
			// The owner's own host slot is already credited through ownership.
			if isOwner {
				continue
			}
			if counts(c) {
				m.SessionsHosted++
			}
			bump(c, func(sc *SessionCounts) { sc.Hosted++ })
		default:
			if isOwner {
				continue
			}
			if counts(c) {
				m.SessionsAttended++
			}
			bump(c, func(sc *SessionCounts) { sc.Attended++ })
		}
	}

	for _, c := range touched {
		if counts(c) {
			m.SessionsLogged++
		}
		bump(c, func(sc *SessionCounts) { sc.Logged++ })
	}
	return warns
}

package activity

import (
	"fmt"
	"time"
)

// MemberReport is the merged, aggregated and evaluated row of one member.
type MemberReport struct {
	UserID   int64           `json:"user_id"`
	RoleIDs  []string        `json:"role_ids"`
	IsOwner  bool            `json:"is_owner"`
	Orphan   bool            `json:"orphan"`
	Metrics  MemberMetrics   `json:"metrics"`
	Progress []QuotaProgress `json:"progress"`
	MeetsAll bool            `json:"meets_all"`

	ConfigurationErrors []string `json:"configuration_errors,omitempty"`
}

// Report is the outcome of one pipeline run for one organization.
type Report struct {
	OrganizationID string         `json:"organization_id"`
	Window         Window         `json:"window"`
	Members        []MemberReport `json:"members"`
	Warnings       []Warning      `json:"warnings,omitempty"`
}

// Member looks up the row of userID.
func (r Report) Member(userID int64) (MemberReport, bool) {
	for _, m := range r.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return MemberReport{}, false
}

// Run resolves the window, merges roster and activity, aggregates every
// member and evaluates their quotas. It is a pure function of snap and now:
// the window is resolved once and held for the whole run.
func Run(snap Snapshot, now time.Time) Report {
	w := snap.Settings.Window(snap.Resets, now)
	ix := BuildIndices(snap)
	parts := partition(snap)

	roster := make([]Member, 0, len(ix.RolesByMember))
	for _, m := range snap.Members {
		roster = append(roster, Member{UserID: m.UserID, RoleIDs: ix.RolesByMember[m.UserID]})
	}
	merged := Merge(roster, ActiveUserIDs(snap, w))

	report := Report{
		OrganizationID: snap.OrganizationID,
		Window:         w,
		Members:        make([]MemberReport, 0, len(merged)),
	}
	warnings := newWarningSet()
	warnings.add(snap.LoadWarnings...)
	for _, mm := range merged {
		in := parts.inputFor(mm.UserID, snap.Settings)
		metrics, warns := Aggregate(mm.UserID, w, in)
		warnings.add(warns...)

		row := MemberReport{
			UserID:   mm.UserID,
			RoleIDs:  mm.RoleIDs,
			Orphan:   mm.Orphan,
			Metrics:  metrics,
			Progress: []QuotaProgress{},
		}
		if !mm.Orphan {
			row.IsOwner = ix.IsOwner(mm.RoleIDs)
			ev := EvaluateQuotas(metrics, ix.QuotasFor(mm.RoleIDs))
			row.Progress = ev.Progress
			row.MeetsAll = ev.MeetsAll
			for _, e := range ev.Errors {
				row.ConfigurationErrors = append(row.ConfigurationErrors, e.Error())
			}
		}
		report.Members = append(report.Members, row)
	}
	report.Warnings = warnings.list
	return report
}

type partitions struct {
	events         map[string]HostedEvent
	sessions       map[int64][]PresenceSession
	adjustments    map[int64][]Adjustment
	owned          map[int64][]HostedEvent
	participations map[int64][]EventParticipation
	visits         map[int64][]VisitRecord
}

func partition(snap Snapshot) partitions {
	p := partitions{
		events:         indexEvents(snap.Events),
		sessions:       make(map[int64][]PresenceSession),
		adjustments:    make(map[int64][]Adjustment),
		owned:          make(map[int64][]HostedEvent),
		participations: make(map[int64][]EventParticipation),
		visits:         make(map[int64][]VisitRecord),
	}
	for _, s := range snap.Sessions {
		p.sessions[s.UserID] = append(p.sessions[s.UserID], s)
	}
	for _, a := range snap.Adjustments {
		p.adjustments[a.UserID] = append(p.adjustments[a.UserID], a)
	}
	for _, ev := range snap.Events {
		p.owned[ev.OwnerID] = append(p.owned[ev.OwnerID], ev)
	}
	for _, ep := range snap.Participations {
		p.participations[ep.UserID] = append(p.participations[ep.UserID], ep)
	}
	for _, v := range snap.Visits {
		members := map[int64]struct{}{v.HostID: {}}
		for _, id := range v.ParticipantIDs {
			members[id] = struct{}{}
		}
		for id := range members {
			p.visits[id] = append(p.visits[id], v)
		}
	}
	return p
}

func (p partitions) inputFor(userID int64, st Settings) AggregateInput {
	return AggregateInput{
		Settings:       st,
		Sessions:       p.sessions[userID],
		Adjustments:    p.adjustments[userID],
		Events:         p.owned[userID],
		Participations: p.participations[userID],
		Visits:         p.visits[userID],
		events:         p.events,
	}
}

type warningSet struct {
	seen map[string]struct{}
	list []Warning
}

func newWarningSet() *warningSet {
	return &warningSet{seen: make(map[string]struct{})}
}

func (s *warningSet) add(warns ...Warning) {
	for _, w := range warns {
		key := fmt.Sprintf("%s|%d|%s|%s", w.Kind, w.UserID, w.Subject, w.Detail)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.list = append(s.list, w)
	}
}

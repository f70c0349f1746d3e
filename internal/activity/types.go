package activity

import "time"

// Member is a roster entry: a user and the roles they currently hold.
type Member struct {
	UserID  int64    `json:"user_id"`
	RoleIDs []string `json:"role_ids"`
}

// Role groups members and scopes quotas.
// Owner roles are still aggregated; they are only kept out of quota assignment.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	IsOwnerRole bool     `json:"is_owner_role"`
	QuotaIDs    []string `json:"quota_ids,omitempty"`
}

// PresenceSession is a timed activity record. A nil EndTime means the session is still open.
type PresenceSession struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"user_id"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	IdleMinutes  float64    `json:"idle_minutes"`
	MessageCount int64      `json:"message_count"`
}

// Open reports whether the session has not been closed yet.
func (s PresenceSession) Open() bool { return s.EndTime == nil }

// Adjustment is a signed manual correction to active minutes.
type Adjustment struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Minutes   int64     `json:"minutes"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// PeriodReset moves the window floor forward. Resets are append-only.
type PeriodReset struct {
	ID      string    `json:"id"`
	ResetAt time.Time `json:"reset_at"`
	ResetBy string    `json:"reset_by"`
}

// RoleKind tags a role slot on an event.
type RoleKind string

const (
	RoleKindUntagged    RoleKind = ""
	RoleKindHost        RoleKind = "host"
	RoleKindCoHost      RoleKind = "co_host"
	RoleKindParticipant RoleKind = "participant"
)

// Valid reports whether k is one of the known kinds (untagged included).
func (k RoleKind) Valid() bool {
	switch k {
	case RoleKindUntagged, RoleKindHost, RoleKindCoHost, RoleKindParticipant:
		return true
	}
	return false
}

// RoleSlot is one claimable position on a hosted event.
type RoleSlot struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Kind RoleKind `json:"kind,omitempty"`
}

// HostedEvent is an event owned by one member.
type HostedEvent struct {
	ID           string     `json:"id"`
	OwnerID      int64      `json:"owner_id"`
	Date         time.Time  `json:"date"`
	EventTypeTag string     `json:"event_type"`
	Slots        []RoleSlot `json:"slots,omitempty"`
}

// EventParticipation records a member holding a slot on an event.
type EventParticipation struct {
	UserID     int64  `json:"user_id"`
	EventID    string `json:"event_id"`
	RoleSlotID string `json:"role_slot_id"`
	SlotIndex  int    `json:"slot_index"`
}

// VisitRecord is an alliance visit. It counts for the host and every listed participant.
type VisitRecord struct {
	ID             string    `json:"id"`
	HostID         int64     `json:"host_id"`
	ParticipantIDs []int64   `json:"participant_ids"`
	Time           time.Time `json:"time"`
}

// QuotaType selects the metric a quota is measured against.
type QuotaType string

const (
	QuotaMinutes          QuotaType = "mins"
	QuotaSessionsHosted   QuotaType = "sessions_hosted"
	QuotaSessionsAttended QuotaType = "sessions_attended"
	QuotaSessionsLogged   QuotaType = "sessions_logged"
	QuotaAllianceVisits   QuotaType = "alliance_visits"
)

// Valid reports whether t is a supported quota type.
func (t QuotaType) Valid() bool {
	switch t {
	case QuotaMinutes, QuotaSessionsHosted, QuotaSessionsAttended, QuotaSessionsLogged, QuotaAllianceVisits:
		return true
	}
	return false
}

// Filterable reports whether a session type filter applies to t.
func (t QuotaType) Filterable() bool {
	return t == QuotaSessionsHosted || t == QuotaSessionsAttended || t == QuotaSessionsLogged
}

// Quota is a role-scoped numeric target for the current period.
type Quota struct {
	ID                string    `json:"id"`
	Name              string    `json:"name,omitempty"`
	Type              QuotaType `json:"type"`
	Value             float64   `json:"value"`
	SessionTypeFilter string    `json:"session_type_filter,omitempty"`
	RoleIDs           []string  `json:"role_ids"`
}

// SessionCounts holds the event credit counters of one member.
type SessionCounts struct {
	Hosted   int `json:"hosted"`
	Attended int `json:"attended"`
	Logged   int `json:"logged"`
}

// MemberMetrics is the derived progress of one member within a window.
type MemberMetrics struct {
	ActiveMinutes     float64 `json:"active_minutes"`
	RawMinutes        float64 `json:"raw_minutes"`
	IdleMinutes       float64 `json:"idle_minutes"`
	AdjustmentMinutes int64   `json:"adjustment_minutes"`
	MessageCount      int64   `json:"message_count"`
	SessionsHosted    int     `json:"sessions_hosted"`
	SessionsAttended  int     `json:"sessions_attended"`
	SessionsLogged    int     `json:"sessions_logged"`
	AllianceVisits    int     `json:"alliance_visits"`

	// ByCategory only holds known categories; uncategorized events count in the totals alone.
	ByCategory map[string]SessionCounts `json:"by_category,omitempty"`
}

// QuotaProgress is the evaluation of one quota for one member.
type QuotaProgress struct {
	QuotaID      string    `json:"quota_id"`
	Type         QuotaType `json:"type"`
	Target       float64   `json:"target"`
	CurrentValue float64   `json:"current_value"`
	Percentage   float64   `json:"percentage"`
	Meets        bool      `json:"meets"`
}

// Window is the current tracking period, inclusive on both ends.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Snapshot is every raw input of one organization at one point in time.
type Snapshot struct {
	OrganizationID string
	Settings       Settings
	// SettingsRaw is the stored settings blob read with the records; nil when
	// the organization never saved settings.
	SettingsRaw []byte
	// LoadWarnings are integrity problems the loader tolerated, such as event
	// slots that could not be decoded.
	LoadWarnings []Warning

	Members        []Member
	Roles          []Role
	Quotas         []Quota
	Sessions       []PresenceSession
	Adjustments    []Adjustment
	Resets         []PeriodReset
	Events         []HostedEvent
	Participations []EventParticipation
	Visits         []VisitRecord
}

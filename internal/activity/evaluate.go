package activity

import "math"

// Evaluation is the quota outcome of one member.
type Evaluation struct {
	Progress []QuotaProgress
	MeetsAll bool
	Errors   []*ConfigurationError
}

// EvaluateQuotas scores metrics against the quotas scoped to a member's roles.
//
// A member with no scoped quotas does not meet them: MeetsAll is false, not
// vacuously true. Misconfigured quotas are skipped individually, reported in
// Errors, and also keep MeetsAll false.
func EvaluateQuotas(m MemberMetrics, quotas []Quota) Evaluation {
	ev := Evaluation{Progress: make([]QuotaProgress, 0, len(quotas))}
	meets := len(quotas) > 0
	for _, q := range quotas {
		if err := ValidateQuota(q); err != nil {
			cfgErr, _ := err.(*ConfigurationError)
			ev.Errors = append(ev.Errors, cfgErr)
			meets = false
			continue
		}
		current := CurrentValue(m, q)
		p := QuotaProgress{
			QuotaID:      q.ID,
			Type:         q.Type,
			Target:       q.Value,
			CurrentValue: current,
			Percentage:   Percentage(current, q.Value),
			Meets:        current >= q.Value,
		}
		if !p.Meets {
			meets = false
		}
		ev.Progress = append(ev.Progress, p)
	}
	ev.MeetsAll = meets
	return ev
}

// CurrentValue selects the metric measured by q, honouring its session type filter.
func CurrentValue(m MemberMetrics, q Quota) float64 {
	if filter := normalizeTag(q.SessionTypeFilter); filter != "" && q.Type.Filterable() {
		sc := m.ByCategory[filter]
		switch q.Type {
		case QuotaSessionsHosted:
			return float64(sc.Hosted)
		case QuotaSessionsAttended:
			return float64(sc.Attended)
		case QuotaSessionsLogged:
			return float64(sc.Logged)
		}
	}
	switch q.Type {
	case QuotaMinutes:
		return m.ActiveMinutes
	case QuotaSessionsHosted:
		return float64(m.SessionsHosted)
	case QuotaSessionsAttended:
		return float64(m.SessionsAttended)
	case QuotaSessionsLogged:
		return float64(m.SessionsLogged)
	case QuotaAllianceVisits:
		return float64(m.AllianceVisits)
	}
	return 0
}

// Percentage returns current/target*100 clamped to [0, 100]. A non-positive
// target yields 0; such quotas are rejected before they get here.
func Percentage(current, target float64) float64 {
	if !(target > 0) || math.IsNaN(current) {
		return 0
	}
	pct := current / target * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

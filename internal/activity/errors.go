package activity

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration  = errors.New("activity: invalid quota configuration")
	ErrMalformedState = errors.New("activity: malformed stored settings")
)

// ConfigurationError describes a quota that cannot be evaluated.
type ConfigurationError struct {
	QuotaID string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.QuotaID == "" {
		return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%v: quota %s: %s", ErrConfiguration, e.QuotaID, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ValidateQuota rejects quotas the evaluator could not score.
func ValidateQuota(q Quota) error {
	if !q.Type.Valid() {
		return &ConfigurationError{QuotaID: q.ID, Reason: fmt.Sprintf("unsupported type %q", q.Type)}
	}
	if !(q.Value > 0) {
		return &ConfigurationError{QuotaID: q.ID, Reason: "value must be greater than zero"}
	}
	if q.SessionTypeFilter != "" && !q.Type.Filterable() {
		return &ConfigurationError{QuotaID: q.ID, Reason: fmt.Sprintf("session type filter not supported for %s", q.Type)}
	}
	return nil
}

// WarningKind classifies recoverable data integrity problems.
type WarningKind string

const (
	WarnUnknownCategory     WarningKind = "unknown_category"
	WarnSlotIndexOutOfRange WarningKind = "slot_index_out_of_range"
	WarnUnknownSlotKind     WarningKind = "unknown_slot_kind"
	WarnUnknownEvent        WarningKind = "unknown_event"
	WarnNegativeDuration    WarningKind = "negative_duration"
	WarnMalformedSlots      WarningKind = "malformed_slots"
)

// Warning is a data integrity problem that was tolerated during aggregation.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	UserID  int64       `json:"user_id,omitempty"`
	Subject string      `json:"subject,omitempty"`
	Detail  string      `json:"detail"`
}

func (w Warning) String() string {
	if w.Subject == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
	}
	return fmt.Sprintf("%s (%s): %s", w.Kind, w.Subject, w.Detail)
}

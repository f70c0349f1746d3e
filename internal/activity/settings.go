package activity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTrackingEpoch is the window floor for organizations that never configured one.
var DefaultTrackingEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultCategories is the known event type enumeration.
var DefaultCategories = []string{"shift", "training", "event", "other"}

// Settings is the per-organization engine configuration, resolved once per run.
type Settings struct {
	IdleTimeEnabled bool
	// IncludeOpenSessions sums idle minutes and messages of sessions that have
	// not been closed. Their duration never counts.
	IncludeOpenSessions bool
	TrackingEpoch       time.Time
	Categories          []string
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		IdleTimeEnabled:     true,
		IncludeOpenSessions: true,
		TrackingEpoch:       DefaultTrackingEpoch,
		Categories:          append([]string(nil), DefaultCategories...),
	}
}

// Floor returns the hard floor of the tracking window.
func (s Settings) Floor() time.Time {
	if s.TrackingEpoch.IsZero() {
		return DefaultTrackingEpoch
	}
	return s.TrackingEpoch
}

// Window resolves the current tracking period for these settings.
func (s Settings) Window(resets []PeriodReset, now time.Time) Window {
	return ResolveWindow(resets, s.Floor(), now)
}

// Category normalizes an event type tag and reports whether it is a known category.
func (s Settings) Category(tag string) (string, bool) {
	tag = normalizeTag(tag)
	if tag == "" {
		return "", false
	}
	cats := s.Categories
	if len(cats) == 0 {
		cats = DefaultCategories
	}
	for _, c := range cats {
		if normalizeTag(c) == tag {
			return tag, true
		}
	}
	return tag, false
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

type storedSettings struct {
	IdleTimeEnabled     json.RawMessage `json:"idleTimeEnabled,omitempty"`
	IncludeOpenSessions json.RawMessage `json:"includeOpenSessions,omitempty"`
	TrackingEpoch       json.RawMessage `json:"trackingEpoch,omitempty"`
	Categories          json.RawMessage `json:"categories,omitempty"`
}

// ParseSettings decodes the stored settings blob. It never fails hard: fields
// that cannot be decoded keep their default and the returned error (wrapping
// ErrMalformedState) lists them. The blob may itself be a JSON string holding
// the document.
func ParseSettings(raw []byte) (Settings, error) {
	return ParseSettingsWith(raw, DefaultSettings())
}

// ParseSettingsWith is ParseSettings with base supplying the defaults.
func ParseSettingsWith(raw []byte, base Settings) (Settings, error) {
	out := base
	out.Categories = append([]string(nil), base.Categories...)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return out, fmt.Errorf("%w: %v", ErrMalformedState, err)
		}
		return ParseSettingsWith([]byte(inner), base)
	}

	var stored storedSettings
	if err := json.Unmarshal(raw, &stored); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	var bad []string
	if v, ok, err := looseBool(stored.IdleTimeEnabled); err != nil {
		bad = append(bad, "idleTimeEnabled")
	} else if ok {
		out.IdleTimeEnabled = v
	}
	if v, ok, err := looseBool(stored.IncludeOpenSessions); err != nil {
		bad = append(bad, "includeOpenSessions")
	} else if ok {
		out.IncludeOpenSessions = v
	}
	if len(stored.TrackingEpoch) > 0 && !isNull(stored.TrackingEpoch) {
		var epoch time.Time
		if err := json.Unmarshal(stored.TrackingEpoch, &epoch); err != nil {
			bad = append(bad, "trackingEpoch")
		} else if !epoch.IsZero() {
			out.TrackingEpoch = epoch.UTC()
		}
	}
	if len(stored.Categories) > 0 && !isNull(stored.Categories) {
		var cats []string
		if err := json.Unmarshal(stored.Categories, &cats); err != nil {
			bad = append(bad, "categories")
		} else if normalized := normalizeCategories(cats); len(normalized) > 0 {
			out.Categories = normalized
		}
	}
	if len(bad) > 0 {
		return out, fmt.Errorf("%w: %s", ErrMalformedState, strings.Join(bad, ", "))
	}
	return out, nil
}

// SettingsPatch is a partial settings update. Nil fields keep what is stored;
// a zero TrackingEpoch or an empty Categories list drops the stored value so
// the field follows the defaults again.
type SettingsPatch struct {
	IdleTimeEnabled     *bool
	IncludeOpenSessions *bool
	TrackingEpoch       *time.Time
	Categories          []string
}

// ApplySettingsPatch merges p into the stored blob raw and returns the new
// blob. Keys p leaves alone are copied verbatim, so fields that were never
// saved keep following the process defaults. An unreadable blob is replaced.
func ApplySettingsPatch(raw []byte, p SettingsPatch) ([]byte, error) {
	doc := storedDocument(raw)
	setBool := func(key string, v *bool) {
		if v != nil {
			doc[key] = json.RawMessage(strconv.FormatBool(*v))
		}
	}
	setBool("idleTimeEnabled", p.IdleTimeEnabled)
	setBool("includeOpenSessions", p.IncludeOpenSessions)

	if p.TrackingEpoch != nil {
		if p.TrackingEpoch.IsZero() {
			delete(doc, "trackingEpoch")
		} else {
			b, err := json.Marshal(p.TrackingEpoch.UTC().Format(time.RFC3339))
			if err != nil {
				return nil, err
			}
			doc["trackingEpoch"] = b
		}
	}
	if p.Categories != nil {
		if cats := normalizeCategories(p.Categories); len(cats) > 0 {
			b, err := json.Marshal(cats)
			if err != nil {
				return nil, err
			}
			doc["categories"] = b
		} else {
			delete(doc, "categories")
		}
	}
	return json.Marshal(doc)
}

func storedDocument(raw []byte) map[string]json.RawMessage {
	doc := make(map[string]json.RawMessage)
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return doc
		}
		raw = bytes.TrimSpace([]byte(inner))
	}
	if len(raw) == 0 || raw[0] != '{' {
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return make(map[string]json.RawMessage)
	}
	return doc
}

func looseBool(raw json.RawMessage) (bool, bool, error) {
	if len(raw) == 0 || isNull(raw) {
		return false, false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false, errors.New("not a boolean")
	}
	return b, true, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func normalizeCategories(cats []string) []string {
	seen := make(map[string]struct{}, len(cats))
	var out []string
	for _, c := range cats {
		c = normalizeTag(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

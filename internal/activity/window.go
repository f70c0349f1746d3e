package activity

import "time"

// LatestReset returns the most recent reset by ResetAt.
func LatestReset(resets []PeriodReset) (PeriodReset, bool) {
	var (
		latest PeriodReset
		found  bool
	)
	for _, r := range resets {
		if r.ResetAt.IsZero() {
			continue
		}
		if !found || r.ResetAt.After(latest.ResetAt) {
			latest = r
			found = true
		}
	}
	return latest, found
}

// ResolveWindow returns [max(latest reset, floor), now]. Without a reset the
// floor is the start. Adding a reset can only move the start forward.
func ResolveWindow(resets []PeriodReset, floor, now time.Time) Window {
	start := floor
	if latest, ok := LatestReset(resets); ok && latest.ResetAt.After(start) {
		start = latest.ResetAt
	}
	return Window{Start: start, End: now}
}

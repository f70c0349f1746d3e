package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rollcall.org/internal/activity"
	"rollcall.org/internal/obs"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Source loads the raw inputs of one organization at one point in time,
// the stored settings blob included. Settings are parsed by the service.
type Source interface {
	LoadSnapshot(ctx context.Context, orgID string) (activity.Snapshot, error)
}

// Service runs the computation engine over a freshly loaded snapshot.
type Service struct {
	src      Source
	defaults activity.Settings
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithDefaults(st activity.Settings) Option {
	return func(s *Service) { s.defaults = st }
}

func NewService(src Source, opts ...Option) (*Service, error) {
	if src == nil {
		return nil, errors.New("report source is required")
	}
	s := &Service{
		src:      src,
		defaults: activity.DefaultSettings(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OrganizationReport evaluates every rostered and active member of orgID.
func (s *Service) OrganizationReport(ctx context.Context, orgID string) (activity.Report, error) {
	rep, _, err := s.run(ctx, orgID)
	return rep, err
}

func (s *Service) run(ctx context.Context, orgID string) (activity.Report, activity.Snapshot, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return activity.Report{}, activity.Snapshot{}, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	snap, err := s.src.LoadSnapshot(ctx, orgID)
	if err != nil {
		return activity.Report{}, activity.Snapshot{}, err
	}
	snap.OrganizationID = orgID
	snap.Settings = s.settings(ctx, orgID, snap.SettingsRaw)

	started := time.Now()
	rep := activity.Run(snap, s.now())
	obs.ObserveReport(time.Since(started), len(rep.Members))

	if _, ok := activity.LatestReset(snap.Resets); !ok {
		obs.Logger().DebugContext(ctx, "no period reset, window starts at tracking epoch",
			"organization_id", orgID,
			"window_start", rep.Window.Start,
		)
	}
	s.record(ctx, rep)
	return rep, snap, nil
}

// MemberProgress returns the row of one member. Members that are neither
// rostered nor active in the window are not found.
func (s *Service) MemberProgress(ctx context.Context, orgID string, userID int64) (activity.MemberReport, error) {
	if userID <= 0 {
		return activity.MemberReport{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	rep, err := s.OrganizationReport(ctx, orgID)
	if err != nil {
		return activity.MemberReport{}, err
	}
	row, ok := rep.Member(userID)
	if !ok {
		return activity.MemberReport{}, fmt.Errorf("%w: member %d", ErrNotFound, userID)
	}
	return row, nil
}

// QuotaStat aggregates one quota across the members it is scoped to.
type QuotaStat struct {
	QuotaID           string             `json:"quota_id"`
	Name              string             `json:"name,omitempty"`
	Type              activity.QuotaType `json:"type"`
	Target            float64            `json:"target"`
	Members           int                `json:"members"`
	Meeting           int                `json:"meeting"`
	AveragePercentage float64            `json:"average_percentage"`
}

// Summary is the dashboard view of an organization report.
type Summary struct {
	OrganizationID string          `json:"organization_id"`
	Window         activity.Window `json:"window"`
	Members        int             `json:"members"`
	MeetingAll     int             `json:"meeting_all"`
	Orphans        int             `json:"orphans"`
	Quotas         []QuotaStat     `json:"quotas"`
	Warnings       int             `json:"warnings"`
}

// QuotaSummary counts, per quota, how many scoped members meet it.
func (s *Service) QuotaSummary(ctx context.Context, orgID string) (Summary, error) {
	rep, snap, err := s.run(ctx, orgID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(rep, snap.Quotas), nil
}

// Summarize folds a report into per-quota counts. Quotas keep the given order;
// quotas nobody is scoped to are listed with zero members.
func Summarize(rep activity.Report, quotas []activity.Quota) Summary {
	out := Summary{
		OrganizationID: rep.OrganizationID,
		Window:         rep.Window,
		Quotas:         make([]QuotaStat, 0, len(quotas)),
		Warnings:       len(rep.Warnings),
	}
	stats := make(map[string]*QuotaStat, len(quotas))
	for _, q := range quotas {
		out.Quotas = append(out.Quotas, QuotaStat{QuotaID: q.ID, Name: q.Name, Type: q.Type, Target: q.Value})
	}
	for i := range out.Quotas {
		stats[out.Quotas[i].QuotaID] = &out.Quotas[i]
	}

	sums := make(map[string]float64, len(quotas))
	for _, m := range rep.Members {
		out.Members++
		if m.Orphan {
			out.Orphans++
		}
		if m.MeetsAll {
			out.MeetingAll++
		}
		for _, p := range m.Progress {
			st, ok := stats[p.QuotaID]
			if !ok {
				continue
			}
			st.Members++
			if p.Meets {
				st.Meeting++
			}
			sums[p.QuotaID] += p.Percentage
		}
	}
	for i := range out.Quotas {
		st := &out.Quotas[i]
		if st.Members > 0 {
			st.AveragePercentage = sums[st.QuotaID] / float64(st.Members)
		}
	}
	return out
}

func (s *Service) settings(ctx context.Context, orgID string, raw []byte) activity.Settings {
	if len(raw) == 0 {
		obs.Logger().DebugContext(ctx, "no stored settings, using defaults", "organization_id", orgID)
	}
	st, err := activity.ParseSettingsWith(raw, s.defaults)
	if err != nil {
		obs.Logger().WarnContext(ctx, "stored settings malformed",
			"organization_id", orgID,
			"error", err.Error(),
		)
	}
	return st
}

func (s *Service) record(ctx context.Context, rep activity.Report) {
	log := obs.Logger()
	for _, w := range rep.Warnings {
		obs.CountWarning(string(w.Kind))
		log.WarnContext(ctx, "data integrity warning",
			"organization_id", rep.OrganizationID,
			"kind", string(w.Kind),
			"user_id", w.UserID,
			"subject", w.Subject,
			"detail", w.Detail,
		)
	}
	cfgErrors := 0
	for _, m := range rep.Members {
		for _, msg := range m.ConfigurationErrors {
			cfgErrors++
			log.WarnContext(ctx, "quota skipped",
				"organization_id", rep.OrganizationID,
				"user_id", m.UserID,
				"error", msg,
			)
		}
	}
	obs.CountConfigurationErrors(cfgErrors)
}

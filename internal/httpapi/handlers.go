package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"rollcall.org/internal/auth"
	"rollcall.org/internal/obs"
	"rollcall.org/internal/report"
	"rollcall.org/internal/roster"
)

const serviceName = "rollcall-api"

// ReadyProbe checks the dependencies the API needs to serve traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the roster and report services.
type API struct {
	roster     *roster.Service
	reports    *report.Service
	readyProbe ReadyProbe
	version    string

	rateBurst   int
	ratePerSec  float64
	devTokens   bool
	tokenTTL    time.Duration
	corsOrigins []string
}

type Option func(*API)

// WithRateLimit sets the per client token bucket.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

// WithDevTokens enables POST /v1/auth/token issuing tokens valid for ttl.
func WithDevTokens(ttl time.Duration) Option {
	return func(a *API) {
		a.devTokens = true
		if ttl > 0 {
			a.tokenTTL = ttl
		}
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.corsOrigins = append([]string(nil), origins...) }
}

func New(rp ReadyProbe, version string, rosterSvc *roster.Service, reports *report.Service, opts ...Option) *API {
	a := &API{
		roster:      rosterSvc,
		reports:     reports,
		readyProbe:  rp,
		version:     version,
		rateBurst:   20,
		ratePerSec:  10,
		tokenTTL:    15 * time.Minute,
		corsOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler builds the router with the full middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(LoggingJSON)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         600,
	}))
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, 1<<20) })
	r.Use(obs.Instrument)
	r.Use(a.withAuth)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())
	r.Post("/v1/auth/token", a.handleAuthToken)

	r.Route("/v1/organizations/{org}", func(r chi.Router) {
		r.With(RequirePermission(auth.PermReportRead)).Get("/report", a.getReport)
		r.With(RequirePermission(auth.PermReportRead)).Get("/members/{user}/progress", a.getProgress)
		r.With(RequirePermission(auth.PermReportRead)).Get("/quotas/summary", a.getQuotaSummary)

		r.With(RequirePermission(auth.PermReportRead)).Get("/roles", a.listRoles)
		r.With(RequirePermission(auth.PermRosterManage)).Post("/roles", a.createRole)
		r.With(RequirePermission(auth.PermRosterManage)).Post("/members/{user}/roles/{role}", a.assignRole)
		r.With(RequirePermission(auth.PermRosterManage)).Delete("/members/{user}/roles/{role}", a.removeRole)

		r.With(RequirePermission(auth.PermReportRead)).Get("/quotas", a.listQuotas)
		r.With(RequirePermission(auth.PermRosterManage)).Post("/quotas", a.createQuota)
		r.With(RequirePermission(auth.PermRosterManage)).Delete("/quotas/{quota}", a.deleteQuota)

		r.With(RequirePermission(auth.PermReportRead)).Get("/resets", a.listResets)
		r.With(RequirePermission(auth.PermPeriodReset)).Post("/resets", a.resetPeriod)
		r.With(RequirePermission(auth.PermRosterManage)).Post("/adjustments", a.addAdjustment)

		r.With(RequirePermission(auth.PermReportRead)).Get("/settings", a.getSettings)
		r.With(RequirePermission(auth.PermSettingsManage)).Put("/settings", a.putSettings)

		r.Group(func(r chi.Router) {
			r.Use(RequirePermission(auth.PermActivityRecord))
			r.Post("/sessions", a.startSession)
			r.Post("/sessions/{session}/end", a.endSession)
			r.Post("/events", a.recordEvent)
			r.Post("/events/{event}/claims", a.claimSlot)
			r.Post("/visits", a.recordVisit)
		})
	})
	return r
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body and leaves dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(w, r, dst)
}

func parseUserID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("user id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("user id must be an integer")
	}
	if id <= 0 {
		return 0, errors.New("user id must be positive")
	}
	return id, nil
}

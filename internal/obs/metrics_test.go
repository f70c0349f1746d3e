package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/metrics", "/metrics"},
		{"/v1/organizations/org-1/report", "/v1/organizations/:id/report"},
		{"/v1/organizations/org-1/members/42/progress", "/v1/organizations/:id/members/:id/progress"},
		{"/v1/organizations/org-1/quotas/summary", "/v1/organizations/:id/quotas/summary"},
		{"/v1/organizations/org-1/quotas/q1", "/v1/organizations/:id/quotas/:id"},
		{"/v1/organizations/org-1/report?at=now", "/v1/organizations/:id/report"},
	}
	for _, tc := range cases {
		if got := CanonicalPath(tc.in); got != tc.want {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/v1/organizations/{org}/report", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/organizations/{org}/report", "202"))
	req := httptest.NewRequest(http.MethodGet, "/v1/organizations/abc/report", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/organizations/{org}/report", "202"))

	if after-before != 1 {
		t.Fatalf("expected one request counted under route pattern, got %v", after-before)
	}
}

func TestEngineCounters(t *testing.T) {
	Init()
	before := testutil.ToFloat64(integrityWarnings.WithLabelValues("unknown_event"))
	CountWarning("unknown_event")
	if got := testutil.ToFloat64(integrityWarnings.WithLabelValues("unknown_event")); got-before != 1 {
		t.Fatalf("warning counter moved by %v", got-before)
	}

	beforeCfg := testutil.ToFloat64(quotaConfigErrors)
	CountConfigurationErrors(0)
	CountConfigurationErrors(2)
	if got := testutil.ToFloat64(quotaConfigErrors); got-beforeCfg != 2 {
		t.Fatalf("configuration error counter moved by %v", got-beforeCfg)
	}

	ObserveReport(5*time.Millisecond, 12)
	SetReady(true)
	if testutil.ToFloat64(ready) != 1 {
		t.Fatal("expected ready gauge to be 1")
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Logger().Info("hello", "organization_id", "org-1")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "organization_id"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if !strings.HasSuffix(entry["ts"].(string), "Z") {
		t.Fatalf("expected UTC timestamp, got %v", entry["ts"])
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")
	if SetLevel("chatty") {
		t.Fatal("expected unknown level to be rejected")
	}
	if !SetLevel("debug") {
		t.Fatal("expected debug to be accepted")
	}

	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()
	Logger().Debug("visible")
	if buf.Len() == 0 {
		t.Fatal("expected debug line after SetLevel")
	}
}

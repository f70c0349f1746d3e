package config

import (
	"testing"
	"time"

	"rollcall.org/internal/activity"
)

var allKeys = []string{
	"ROLLCALL_HTTP_ADDR",
	"ROLLCALL_GRPC_ADDR",
	"ROLLCALL_PG_DSN",
	"ROLLCALL_AUTH_SECRET",
	"ROLLCALL_TOKEN_TTL",
	"ROLLCALL_DEV_TOKENS",
	"ROLLCALL_RATE_BURST",
	"ROLLCALL_RATE_PER_SEC",
	"ROLLCALL_CORS_ORIGINS",
	"ROLLCALL_TRACKING_EPOCH",
	"ROLLCALL_LOG_LEVEL",
	"ROLLCALL_SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROLLCALL_AUTH_SECRET", "super-secret")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
			t.Fatalf("unexpected default addresses: %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
		}
		if cfg.PostgresDSN != "" {
			t.Fatalf("expected in-memory default, got DSN %q", cfg.PostgresDSN)
		}
		if cfg.TokenTTL != 15*time.Minute || cfg.DevTokens {
			t.Fatalf("unexpected token defaults: ttl=%s dev=%v", cfg.TokenTTL, cfg.DevTokens)
		}
		if !cfg.TrackingEpoch.Equal(activity.DefaultTrackingEpoch) {
			t.Fatalf("unexpected default epoch %s", cfg.TrackingEpoch)
		}
		if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
			t.Fatalf("unexpected CORS defaults: %v", cfg.CORSOrigins)
		}
	})

	t.Run("reads overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROLLCALL_AUTH_SECRET", "s")
		t.Setenv("ROLLCALL_HTTP_ADDR", "127.0.0.1:9000")
		t.Setenv("ROLLCALL_PG_DSN", "postgres://localhost/rollcall")
		t.Setenv("ROLLCALL_TOKEN_TTL", "1h")
		t.Setenv("ROLLCALL_DEV_TOKENS", "true")
		t.Setenv("ROLLCALL_RATE_BURST", "5")
		t.Setenv("ROLLCALL_RATE_PER_SEC", "2.5")
		t.Setenv("ROLLCALL_CORS_ORIGINS", "https://a.example, https://b.example,")
		t.Setenv("ROLLCALL_TRACKING_EPOCH", "2024-06-01T00:00:00Z")
		t.Setenv("ROLLCALL_LOG_LEVEL", "DEBUG")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.PostgresDSN == "" || cfg.TokenTTL != time.Hour || !cfg.DevTokens {
			t.Fatalf("overrides not applied: %+v", cfg)
		}
		if cfg.RateBurst != 5 || cfg.RatePerSecond != 2.5 {
			t.Fatalf("unexpected rate settings: %d %f", cfg.RateBurst, cfg.RatePerSecond)
		}
		if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
			t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
		}
		if cfg.LogLevel != "debug" {
			t.Fatalf("unexpected log level %q", cfg.LogLevel)
		}
		epoch := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		if got := cfg.EngineDefaults().TrackingEpoch; !got.Equal(epoch) {
			t.Fatalf("engine defaults ignore epoch: %s", got)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)
		_, err := Load()
		if err == nil {
			t.Fatal("expected error when secret is missing")
		}
		if want := "missing required environment variables: ROLLCALL_AUTH_SECRET"; err.Error() != want {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ROLLCALL_AUTH_SECRET", "s")
		t.Setenv("ROLLCALL_TOKEN_TTL", "soon")
		t.Setenv("ROLLCALL_RATE_BURST", "-1")
		t.Setenv("ROLLCALL_TRACKING_EPOCH", "2999-01-01T00:00:00Z")
		t.Setenv("ROLLCALL_LOG_LEVEL", "loud")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error for invalid values")
		}
		want := "invalid environment variables: ROLLCALL_TOKEN_TTL, ROLLCALL_RATE_BURST, ROLLCALL_TRACKING_EPOCH, ROLLCALL_LOG_LEVEL"
		if err.Error() != want {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}

func TestLoadTrackingEpoch(t *testing.T) {
	clearEnv(t)
	epoch, err := LoadTrackingEpoch()
	if err != nil || !epoch.Equal(activity.DefaultTrackingEpoch) {
		t.Fatalf("expected default epoch, got %s %v", epoch, err)
	}

	t.Setenv("ROLLCALL_TRACKING_EPOCH", "2024-06-01T02:00:00+02:00")
	epoch, err = LoadTrackingEpoch()
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC); !epoch.Equal(want) || epoch.Location() != time.UTC {
		t.Fatalf("unexpected epoch %s", epoch)
	}

	for _, bad := range []string{"yesterday", "2999-01-01T00:00:00Z"} {
		t.Setenv("ROLLCALL_TRACKING_EPOCH", bad)
		if _, err := LoadTrackingEpoch(); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

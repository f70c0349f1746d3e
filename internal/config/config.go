package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"rollcall.org/internal/activity"
)

// Config captures environment driven configuration of the rollcall services.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	// PostgresDSN selects the Postgres store; empty runs on the in-memory store.
	PostgresDSN string

	AuthSecret string
	TokenTTL   time.Duration
	// DevTokens enables POST /v1/auth/token.
	DevTokens bool

	RateBurst     int
	RatePerSecond float64
	CORSOrigins   []string

	// TrackingEpoch is the window floor for organizations without their own.
	TrackingEpoch time.Time
	LogLevel      string

	ShutdownTimeout time.Duration
}

// Load parses configuration values from the current process environment.
// Optional values fall back to defaults; every missing or malformed key is
// reported in one error.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
		TokenTTL:        15 * time.Minute,
		RateBurst:       20,
		RatePerSecond:   10,
		CORSOrigins:     []string{"*"},
		TrackingEpoch:   activity.DefaultTrackingEpoch,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if v := env("ROLLCALL_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := env("ROLLCALL_GRPC_ADDR"); v != "" {
		cfg.GRPCAddr = v
	}
	cfg.PostgresDSN = env("ROLLCALL_PG_DSN")

	if v := env("ROLLCALL_AUTH_SECRET"); v == "" {
		missing = append(missing, "ROLLCALL_AUTH_SECRET")
	} else {
		cfg.AuthSecret = v
	}

	if v := env("ROLLCALL_TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "ROLLCALL_TOKEN_TTL")
		} else {
			cfg.TokenTTL = ttl
		}
	}

	if v := env("ROLLCALL_DEV_TOKENS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			invalid = append(invalid, "ROLLCALL_DEV_TOKENS")
		} else {
			cfg.DevTokens = b
		}
	}

	if v := env("ROLLCALL_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			invalid = append(invalid, "ROLLCALL_RATE_BURST")
		} else {
			cfg.RateBurst = n
		}
	}
	if v := env("ROLLCALL_RATE_PER_SEC"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			invalid = append(invalid, "ROLLCALL_RATE_PER_SEC")
		} else {
			cfg.RatePerSecond = f
		}
	}

	if v := env("ROLLCALL_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	if epoch, err := LoadTrackingEpoch(); err != nil {
		invalid = append(invalid, "ROLLCALL_TRACKING_EPOCH")
	} else {
		cfg.TrackingEpoch = epoch
	}

	if v := env("ROLLCALL_LOG_LEVEL"); v != "" {
		switch strings.ToLower(v) {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = strings.ToLower(v)
		default:
			invalid = append(invalid, "ROLLCALL_LOG_LEVEL")
		}
	}

	if v := env("ROLLCALL_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, "ROLLCALL_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = d
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// LoadTrackingEpoch reads ROLLCALL_TRACKING_EPOCH on its own, for tools that
// need engine defaults without the server configuration. Unset yields
// activity.DefaultTrackingEpoch.
func LoadTrackingEpoch() (time.Time, error) {
	v := env("ROLLCALL_TRACKING_EPOCH")
	if v == "" {
		return activity.DefaultTrackingEpoch, nil
	}
	epoch, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("ROLLCALL_TRACKING_EPOCH: %w", err)
	}
	if epoch.After(time.Now()) {
		return time.Time{}, fmt.Errorf("ROLLCALL_TRACKING_EPOCH: %s is in the future", v)
	}
	return epoch.UTC(), nil
}

// EngineDefaults returns the engine settings used for organizations that
// never stored their own.
func (c Config) EngineDefaults() activity.Settings {
	st := activity.DefaultSettings()
	if !c.TrackingEpoch.IsZero() {
		st.TrackingEpoch = c.TrackingEpoch
	}
	return st
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

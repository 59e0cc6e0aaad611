// Package logging builds the zerolog loggers used by the CLI and the tests.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "VPICC_LOG_LEVEL"
	EnvLogTimestamp = "VPICC_LOG_TIMESTAMP"
	EnvLogNoColor   = "VPICC_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config controls the console logger.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Out       io.Writer
}

// DefaultConfig returns the defaults for a profile, before env overrides.
func DefaultConfig(profile Profile) Config {
	cfg := Config{Out: os.Stderr}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// New builds a console logger from cfg.
func New(cfg Config) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		w.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	return zerolog.New(w).Level(cfg.Level).With().Timestamp().Logger()
}

// Runtime returns the CLI logger. Env overrides win over level and noColor.
// An empty level keeps the profile default.
func Runtime(level string, noColor bool) zerolog.Logger {
	cfg := DefaultConfig(ProfileRuntime)
	if lvl, ok := ParseLevel(level); ok {
		cfg.Level = lvl
	}
	cfg.NoColor = noColor
	ApplyEnv(&cfg)
	return New(cfg)
}

// ForTest returns a logger writing through t.Log, so output is attached to the test.
func ForTest(t testing.TB) zerolog.Logger {
	t.Helper()
	cfg := DefaultConfig(ProfileTest)
	ApplyEnv(&cfg)
	cfg.Out = zerolog.NewTestWriter(t)
	cfg.NoColor = true
	return New(cfg)
}

// ApplyEnv overrides cfg from the VPICC_LOG_* variables.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel accepts the usual level names plus a few aliases.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]struct {
		want zerolog.Level
		ok   bool
	}{
		"":        {zerolog.InfoLevel, false},
		"trace":   {zerolog.TraceLevel, true},
		" DEBUG ": {zerolog.DebugLevel, true},
		"warning": {zerolog.WarnLevel, true},
		"off":     {zerolog.Disabled, true},
		"loud":    {zerolog.InfoLevel, false},
	}

	for raw, tt := range tests {
		got, ok := ParseLevel(raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "not-a-bool")

	cfg := DefaultConfig(ProfileRuntime)
	ApplyEnv(&cfg)

	if cfg.Level != zerolog.ErrorLevel {
		t.Errorf("Level = %v, want error", cfg.Level)
	}
	if cfg.Timestamp {
		t.Error("Timestamp should be disabled by env")
	}
	if cfg.NoColor {
		t.Error("an invalid boolean must leave NoColor untouched")
	}
}

func TestNew_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: zerolog.WarnLevel, NoColor: true, Out: &buf})

	log.Info().Msg("hidden")
	log.Warn().Str("reader", "Virtual PCD 00 00").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "reader=") {
		t.Errorf("warn message missing or unformatted: %q", out)
	}
}

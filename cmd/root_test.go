package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/vsmartcard/pkg/config"
	"github.com/spf13/cobra"
)

func parseTestFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addConfigFlags(c)
	if err := c.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	return c
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(parseTestFlags(t))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpicc.toml")
	body := "[card]\nkind = \"payment\"\n\n[log]\nlevel = \"debug\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(parseTestFlags(t,
		"-c", path,
		"--card", "echo",
		"--atr", "3B:00",
		"--metrics-addr", "127.0.0.1:9464",
	))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Card != config.CardEcho {
		t.Errorf("card = %q, want echo", cfg.Card)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want the file value", cfg.LogLevel)
	}
	if diff := cmp.Diff([]byte{0x3B, 0x00}, cfg.ATR); diff != "" {
		t.Errorf("ATR mismatch (-want +got):\n%s", diff)
	}
	if cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Errorf("metrics addr = %q", cfg.MetricsAddr)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := map[string][]string{
		"bad atr":      {"--atr", "3B0"},
		"unknown card": {"--card", "sim"},
		"missing file": {"-c", filepath.Join(t.TempDir(), "nope.toml")},
	}

	for name, args := range tests {
		if _, err := loadConfig(parseTestFlags(t, args...)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

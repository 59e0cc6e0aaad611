// Package config loads the vpicc TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gregLibert/vsmartcard/pkg/tlv"
	"github.com/gregLibert/vsmartcard/pkg/vpcd"
)

// Mode selects who opens the connection.
type Mode string

const (
	// ModeConnect dials vpcd, the usual setup.
	ModeConnect Mode = "connect"
	// ModeListen waits for vpcd to connect (vpcd reverse mode).
	ModeListen Mode = "listen"
)

// CardKind selects the emulator.
type CardKind string

const (
	CardDummy   CardKind = "dummy"
	CardEcho    CardKind = "echo"
	CardPayment CardKind = "payment"
)

// Application is one entry of the payment card directory.
type Application struct {
	AID      []byte
	Label    string
	Priority byte
}

// Config is the resolved configuration.
type Config struct {
	Addr            string
	Mode            Mode
	DialTimeout     time.Duration
	OnProtocolError vpcd.ProtocolErrorPolicy

	LogLevel   string
	LogNoColor bool

	// MetricsAddr is the Prometheus listen address; empty disables metrics.
	MetricsAddr string

	Card         CardKind
	ATR          []byte
	Applications []Application
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Addr:            vpcd.DefaultAddr,
		Mode:            ModeConnect,
		DialTimeout:     5 * time.Second,
		OnProtocolError: vpcd.TerminateOnProtocolError,
		LogLevel:        "info",
		Card:            CardDummy,
		ATR:             append([]byte(nil), vpcd.DefaultATR...),
		Applications: []Application{
			{AID: []byte{0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10}, Label: "VISA", Priority: 1},
			{AID: []byte{0xA0, 0x00, 0x00, 0x00, 0x04, 0x10, 0x10}, Label: "MasterCard", Priority: 2},
		},
	}
}

type fileConfig struct {
	VPCD struct {
		Addr            string `toml:"addr"`
		Mode            string `toml:"mode"`
		DialTimeout     string `toml:"dial_timeout"`
		OnProtocolError string `toml:"on_protocol_error"`
	} `toml:"vpcd"`

	Log struct {
		Level   string `toml:"level"`
		NoColor bool   `toml:"no_color"`
	} `toml:"log"`

	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`

	Card struct {
		Kind         string            `toml:"kind"`
		ATR          string            `toml:"atr"`
		Applications []fileApplication `toml:"applications"`
	} `toml:"card"`
}

type fileApplication struct {
	AID      string `toml:"aid"`
	Label    string `toml:"label"`
	Priority int    `toml:"priority"`
}

// Load reads path and overlays the keys it defines on Default, then validates
// the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("vpcd", "addr") {
		cfg.Addr = strings.TrimSpace(raw.VPCD.Addr)
	}

	if meta.IsDefined("vpcd", "mode") {
		cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(raw.VPCD.Mode)))
	}

	if meta.IsDefined("vpcd", "dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.VPCD.DialTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse vpcd.dial_timeout: %w", err)
		}
		cfg.DialTimeout = d
	}

	if meta.IsDefined("vpcd", "on_protocol_error") {
		policy, err := ParsePolicy(raw.VPCD.OnProtocolError)
		if err != nil {
			return Config{}, err
		}
		cfg.OnProtocolError = policy
	}

	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}

	if meta.IsDefined("log", "no_color") {
		cfg.LogNoColor = raw.Log.NoColor
	}

	if meta.IsDefined("metrics", "addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.Metrics.Addr)
	}

	if meta.IsDefined("card", "kind") {
		cfg.Card = CardKind(strings.ToLower(strings.TrimSpace(raw.Card.Kind)))
	}

	if meta.IsDefined("card", "atr") {
		atr, err := tlv.ParseHex(raw.Card.ATR)
		if err != nil {
			return Config{}, fmt.Errorf("parse card.atr: %w", err)
		}
		cfg.ATR = atr
	}

	if meta.IsDefined("card", "applications") {
		apps, err := normalizeApplications(raw.Card.Applications)
		if err != nil {
			return Config{}, err
		}
		cfg.Applications = apps
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints of cfg.
func (c Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("vpcd.addr must not be empty"))
	}
	switch c.Mode {
	case ModeConnect, ModeListen:
	default:
		errs = append(errs, fmt.Errorf("vpcd.mode %q is not one of connect, listen", c.Mode))
	}
	if c.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("vpcd.dial_timeout %s is negative", c.DialTimeout))
	}

	switch c.Card {
	case CardDummy, CardEcho, CardPayment:
	default:
		errs = append(errs, fmt.Errorf("card.kind %q is not one of dummy, echo, payment", c.Card))
	}
	// An ATR is at most TS + 32 bytes.
	if len(c.ATR) < 2 || len(c.ATR) > 33 {
		errs = append(errs, fmt.Errorf("card.atr must be 2 to 33 bytes, got %d", len(c.ATR)))
	}
	if c.Card == CardPayment && len(c.Applications) == 0 {
		errs = append(errs, errors.New("card.applications must list at least one application for a payment card"))
	}

	return errors.Join(errs...)
}

// ParsePolicy maps "terminate" or "skip" to a ProtocolErrorPolicy.
func ParsePolicy(raw string) (vpcd.ProtocolErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "terminate":
		return vpcd.TerminateOnProtocolError, nil
	case "skip":
		return vpcd.SkipOnProtocolError, nil
	default:
		return 0, fmt.Errorf("unknown protocol error policy %q", raw)
	}
}

func normalizeApplications(in []fileApplication) ([]Application, error) {
	out := make([]Application, 0, len(in))
	for i, app := range in {
		aid, err := tlv.ParseHex(app.AID)
		if err != nil {
			return nil, fmt.Errorf("parse card.applications[%d].aid: %w", i, err)
		}
		// ISO/IEC 7816-5: RID (5 bytes) + PIX (up to 11 bytes).
		if len(aid) < 5 || len(aid) > 16 {
			return nil, fmt.Errorf("card.applications[%d].aid must be 5 to 16 bytes, got %d", i, len(aid))
		}
		if app.Priority < 0 || app.Priority > 15 {
			return nil, fmt.Errorf("card.applications[%d].priority %d is out of range 0-15", i, app.Priority)
		}
		out = append(out, Application{
			AID:      aid,
			Label:    strings.TrimSpace(app.Label),
			Priority: byte(app.Priority),
		})
	}
	return out, nil
}

// Package card provides the virtual cards vpicc can present to vpcd.
//
// Every emulator implements vpcd.Card, and the stateful ones also implement
// vpcd.PowerHandler so a power cycle resets them like a real card.
package card

import (
	"fmt"

	"github.com/gregLibert/vsmartcard/pkg/config"
	"github.com/gregLibert/vsmartcard/pkg/emv"
	"github.com/gregLibert/vsmartcard/pkg/vpcd"
	"github.com/rs/zerolog"
)

// Factory creates a fresh card for each session.
type Factory func() vpcd.Card

// NewFactory checks cfg once and returns a Factory for the configured emulator.
func NewFactory(cfg config.Config, log zerolog.Logger) (Factory, error) {
	log = log.With().Str("card", string(cfg.Card)).Logger()

	switch cfg.Card {
	case config.CardDummy:
		return func() vpcd.Card { return NewDummy(cfg.ATR, log) }, nil

	case config.CardEcho:
		return func() vpcd.Card { return NewEcho(cfg.ATR) }, nil

	case config.CardPayment:
		apps := make([]emv.ApplicationTemplate, 0, len(cfg.Applications))
		for _, app := range cfg.Applications {
			apps = append(apps, emv.NewApplicationTemplate(app.AID, app.Label, app.Priority))
		}
		// Build one card up front so encoding problems surface here.
		if _, err := NewPayment(cfg.ATR, apps, log); err != nil {
			return nil, err
		}
		return func() vpcd.Card {
			p, _ := NewPayment(cfg.ATR, apps, log)
			return p
		}, nil

	default:
		return nil, fmt.Errorf("unknown card kind %q", cfg.Card)
	}
}

// FromConfig builds the configured emulator.
func FromConfig(cfg config.Config, log zerolog.Logger) (vpcd.Card, error) {
	factory, err := NewFactory(cfg, log)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

func atrOrDefault(atr []byte) []byte {
	if len(atr) == 0 {
		return vpcd.DefaultATR
	}
	return append([]byte(nil), atr...)
}

package card

import (
	"github.com/gregLibert/vsmartcard/pkg/iso7816"
	"github.com/rs/zerolog"
)

// Dummy logs every event and accepts every APDU with '9000'.
type Dummy struct {
	atr []byte
	log zerolog.Logger
}

// NewDummy returns a Dummy presenting atr, or vpcd.DefaultATR when atr is empty.
func NewDummy(atr []byte, log zerolog.Logger) *Dummy {
	return &Dummy{atr: atrOrDefault(atr), log: log}
}

func (d *Dummy) ATR() []byte {
	d.log.Debug().Hex("atr", d.atr).Msg("ATR requested")
	return d.atr
}

func (d *Dummy) HandleAPDU(apdu []byte) []byte {
	d.log.Info().Hex("apdu", apdu).Msg("APDU received")
	return iso7816.NewResponseAPDU(nil, iso7816.SW_NO_ERROR).Bytes()
}

func (d *Dummy) PowerOn() {
	d.log.Info().Msg("power on")
}

func (d *Dummy) PowerOff() {
	d.log.Info().Msg("power off")
}

func (d *Dummy) Reset() {
	d.log.Info().Msg("reset")
}

// Echo returns every APDU unchanged.
type Echo struct {
	atr []byte
}

// NewEcho returns an Echo presenting atr, or vpcd.DefaultATR when atr is empty.
func NewEcho(atr []byte) *Echo {
	return &Echo{atr: atrOrDefault(atr)}
}

func (e *Echo) ATR() []byte {
	return e.atr
}

func (e *Echo) HandleAPDU(apdu []byte) []byte {
	return append([]byte(nil), apdu...)
}

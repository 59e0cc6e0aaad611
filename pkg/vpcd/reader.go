package vpcd

import (
	"io"
)

// Reader is the daemon side of the protocol: it powers the card, asks for the
// ATR and transmits APDUs, the way vpcd does on behalf of PC/SC applications.
//
// Reader implements iso7816.Transmitter, so a host-side iso7816.Client can talk
// to a virtual card over any stream. Like the card side, it expects a single
// caller at a time.
type Reader struct {
	rw io.ReadWriter
}

// NewReader wraps an already connected stream.
func NewReader(rw io.ReadWriter) *Reader {
	return &Reader{rw: rw}
}

// PowerOn powers the card. The card sends no reply.
func (r *Reader) PowerOn() error {
	return r.send(Command{Kind: CmdPowerOn})
}

// PowerOff removes power from the card. The card sends no reply.
func (r *Reader) PowerOff() error {
	return r.send(Command{Kind: CmdPowerOff})
}

// Reset performs a warm reset. The card sends no reply.
func (r *Reader) Reset() error {
	return r.send(Command{Kind: CmdReset})
}

// ATR requests the card's Answer-To-Reset. An empty result means the card is
// powered off.
func (r *Reader) ATR() ([]byte, error) {
	if err := r.send(Command{Kind: CmdGetATR}); err != nil {
		return nil, err
	}
	return ReadFrame(r.rw)
}

// Transmit sends a command APDU and waits for the response APDU.
func (r *Reader) Transmit(apdu []byte) ([]byte, error) {
	if err := r.send(Command{Kind: CmdAPDU, APDU: apdu}); err != nil {
		return nil, err
	}
	return ReadFrame(r.rw)
}

func (r *Reader) send(cmd Command) error {
	payload, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return WriteFrame(r.rw, payload)
}

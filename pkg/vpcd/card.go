package vpcd

// DefaultATR is the Answer-To-Reset used by cards that do not provide their own.
var DefaultATR = []byte{0x3B, 0x95, 0x13, 0x81, 0x01, 0x80, 0x73, 0xFF, 0x01, 0x00, 0x0B}

// Card is the emulation logic supplied by the embedding application.
//
// ATR is called once per power-on or reset cycle; the result is cached by the
// session until the next cycle. HandleAPDU is called once per command APDU while
// the card is powered, and must return the full response APDU (data + SW1 SW2).
// Both calls are synchronous; the session waits for them without a timeout.
type Card interface {
	ATR() []byte
	HandleAPDU(apdu []byte) []byte
}

// PowerHandler is an optional extension of Card that observes power events.
// The hooks run before the ATR is produced.
type PowerHandler interface {
	PowerOn()
	PowerOff()
	Reset()
}

// CardFunc adapts a plain function to the Card interface using DefaultATR.
type CardFunc func(apdu []byte) []byte

func (f CardFunc) ATR() []byte {
	return DefaultATR
}

func (f CardFunc) HandleAPDU(apdu []byte) []byte {
	return f(apdu)
}

package vpcd

import (
	"bytes"
	"io"
)

// recordingCard produces a new ATR on every call (3B 00, 3B 01, ...) and echoes APDUs.
type recordingCard struct {
	atrCalls  int
	apduCalls int
	events    []string
	lastATR   []byte
}

func (c *recordingCard) ATR() []byte {
	c.lastATR = []byte{0x3B, byte(c.atrCalls)}
	c.atrCalls++
	return c.lastATR
}

func (c *recordingCard) HandleAPDU(apdu []byte) []byte {
	c.apduCalls++
	return apdu
}

func (c *recordingCard) PowerOn()  { c.events = append(c.events, "on") }
func (c *recordingCard) PowerOff() { c.events = append(c.events, "off") }
func (c *recordingCard) Reset()    { c.events = append(c.events, "reset") }

// scriptedConn replays a fixed input and records everything written.
type scriptedConn struct {
	io.Reader
	out bytes.Buffer
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

func newScriptedConn(frames ...[]byte) *scriptedConn {
	return &scriptedConn{Reader: bytes.NewReader(bytes.Join(frames, nil))}
}

package iso7816

import (
	"bytes"
	"fmt"
)

// APDU structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU):
//   CLA INS P1 P2 [Lc Data] [Le]
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: Header only.
// - Case 2: Header + Le.
// - Case 3: Header + Lc + Data.
// - Case 4: Header + Lc + Data + Le.
//
// LENGTH MODES:
//   - Short:    Lc on 1 byte (1-255), Le on 1 byte (00 means 256).
//   - Extended: a leading 00 then Lc on 2 bytes (1-65535), Le on 2 bytes (0000 means 65536).
//     Within one command both fields use the same mode.
//
// RESPONSE APDU (R-APDU):
//   [Data] SW1 SW2
//
// The host encodes commands with CommandAPDU.Bytes and decodes replies with
// ParseResponseAPDU. A virtual card does the opposite: ParseCommandAPDU on the
// way in, ResponseAPDU.Bytes on the way out.

// APDU Limits and Constants according to ISO 7816-3.
const (
	HeaderLen = 4

	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode.
	MaxShortLc = 255

	// MaxShortLe is the maximum Ne in Short Length mode, encoded as 0x00.
	MaxShortLe = 256

	// MaxExtendedLc is the limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne in Extended mode, encoded as 0x0000.
	MaxExtendedLe = 65536
)

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// Bytes encodes the CommandAPDU into its byte representation (C-APDU).
// Extended encoding is selected when Nc > 255 or Ne > 256.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc := len(c.Data)
	ne := c.Ne
	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data too long: %d bytes", nc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("invalid Ne: %d", ne)
	}

	buf := new(bytes.Buffer)

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	isExtended := nc > MaxShortLc || ne > MaxShortLe

	if nc > 0 {
		if isExtended {
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
		}
		buf.WriteByte(byte(nc))
		buf.Write(c.Data)
	}

	if ne > 0 {
		if !isExtended {
			// 256 wraps to 00
			buf.WriteByte(byte(ne))
		} else {
			// Case 2 extended needs the 00 marker that Lc would otherwise carry.
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			// 65536 wraps to 0000
			buf.WriteByte(byte(ne >> 8))
			buf.WriteByte(byte(ne))
		}
	}

	return buf.Bytes(), nil
}

// ParseCommandAPDU decodes a raw C-APDU as received by a card.
// It is the inverse of CommandAPDU.Bytes for every encoding case.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < HeaderLen {
		return nil, fmt.Errorf("command too short: length %d", len(raw))
	}

	cla, err := NewClass(raw[0])
	if err != nil {
		return nil, err
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, err
	}

	cmd := &CommandAPDU{Class: cla, Instruction: ins, P1: raw[2], P2: raw[3]}
	body := raw[HeaderLen:]

	switch {
	case len(body) == 0:
		// Case 1

	case len(body) == 1:
		// Case 2 short
		cmd.Ne = decodeLe(body, MaxShortLe)

	case body[0] != 0x00 || len(body) < 3:
		// Short Lc
		nc := int(body[0])
		rest := body[1:]
		switch len(rest) {
		case nc:
			// Case 3 short
		case nc + 1:
			// Case 4 short
			cmd.Ne = decodeLe(rest[nc:], MaxShortLe)
		default:
			return nil, fmt.Errorf("Lc=%d inconsistent with body length %d", nc, len(body))
		}
		cmd.Data = rest[:nc]

	case len(body) == 3:
		// Case 2 extended
		cmd.Ne = decodeLe(body[1:], MaxExtendedLe)

	default:
		// Extended Lc
		nc := int(body[1])<<8 | int(body[2])
		rest := body[3:]
		switch len(rest) {
		case nc:
			// Case 3 extended
		case nc + 2:
			// Case 4 extended
			cmd.Ne = decodeLe(rest[nc:], MaxExtendedLe)
		default:
			return nil, fmt.Errorf("extended Lc=%d inconsistent with body length %d", nc, len(body))
		}
		cmd.Data = rest[:nc]
	}

	return cmd, nil
}

func decodeLe(b []byte, wrap int) int {
	v := 0
	for _, x := range b {
		v = v<<8 | int(x)
	}
	if v == 0 {
		return wrap
	}
	return v
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// NewResponseAPDU builds a response with the given data and status.
func NewResponseAPDU(data []byte, sw StatusWord) *ResponseAPDU {
	return &ResponseAPDU{Data: data, Status: sw}
}

// ParseResponseAPDU parses raw bytes received from the card into a ResponseAPDU.
// The input must contain at least 2 bytes (SW1, SW2).
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	indexSW1 := len(raw) - 2
	return &ResponseAPDU{
		Data:   raw[:indexSW1],
		Status: NewStatusWord(raw[indexSW1], raw[indexSW1+1]),
	}, nil
}

// Bytes encodes the response as the card sends it: data followed by SW1 SW2.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.SW1(), r.Status.SW2())
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}

package vpcd

import (
	"fmt"
)

// COMMAND CODEC:
// A frame payload of length 0 or 1 is a control frame, anything longer is an APDU.
//
//   Length 0:  PowerOff (kept for compatibility with older daemons).
//   Length 1:  control code 0x00 PowerOff, 0x01 PowerOn, 0x02 Reset, 0x04 GetAtr.
//   Length >1: raw command APDU, forwarded verbatim to the card.
//
// The length alone separates control frames from APDUs, so a 1-byte APDU cannot
// be expressed. Unknown 1-byte codes are reported as a ProtocolError.

// ControlCode is the single byte carried by a control frame.
type ControlCode byte

const (
	CtrlPowerOff ControlCode = 0x00
	CtrlPowerOn  ControlCode = 0x01
	CtrlReset    ControlCode = 0x02
	CtrlGetATR   ControlCode = 0x04
)

// CommandKind identifies the decoded command variant.
type CommandKind int

const (
	CmdPowerOff CommandKind = iota
	CmdPowerOn
	CmdReset
	CmdGetATR
	CmdAPDU
)

func (k CommandKind) String() string {
	switch k {
	case CmdPowerOff:
		return "PowerOff"
	case CmdPowerOn:
		return "PowerOn"
	case CmdReset:
		return "Reset"
	case CmdGetATR:
		return "GetAtr"
	case CmdAPDU:
		return "APDU"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is one decoded request from the daemon.
// APDU is only set for CmdAPDU.
type Command struct {
	Kind CommandKind
	APDU []byte
}

func (c Command) String() string {
	if c.Kind == CmdAPDU {
		return fmt.Sprintf("APDU (%d bytes)", len(c.APDU))
	}
	return c.Kind.String()
}

// DecodeCommand interprets a frame payload.
func DecodeCommand(payload []byte) (Command, error) {
	switch len(payload) {
	case 0:
		return Command{Kind: CmdPowerOff}, nil
	case 1:
		switch ControlCode(payload[0]) {
		case CtrlPowerOff:
			return Command{Kind: CmdPowerOff}, nil
		case CtrlPowerOn:
			return Command{Kind: CmdPowerOn}, nil
		case CtrlReset:
			return Command{Kind: CmdReset}, nil
		case CtrlGetATR:
			return Command{Kind: CmdGetATR}, nil
		default:
			return Command{}, &ProtocolError{
				Payload: []byte{payload[0]},
				Reason:  fmt.Sprintf("unknown control code 0x%02X (1-byte APDUs are unsupported)", payload[0]),
			}
		}
	default:
		apdu := make([]byte, len(payload))
		copy(apdu, payload)
		return Command{Kind: CmdAPDU, APDU: apdu}, nil
	}
}

// EncodeCommand produces the frame payload for cmd, as the daemon would send it.
func EncodeCommand(cmd Command) ([]byte, error) {
	switch cmd.Kind {
	case CmdPowerOff:
		return []byte{byte(CtrlPowerOff)}, nil
	case CmdPowerOn:
		return []byte{byte(CtrlPowerOn)}, nil
	case CmdReset:
		return []byte{byte(CtrlReset)}, nil
	case CmdGetATR:
		return []byte{byte(CtrlGetATR)}, nil
	case CmdAPDU:
		if len(cmd.APDU) < 2 {
			return nil, ErrAmbiguousAPDU
		}
		return cmd.APDU, nil
	default:
		return nil, fmt.Errorf("vpcd: cannot encode %s", cmd.Kind)
	}
}

// ResponseKind identifies what, if anything, is sent back for a command.
type ResponseKind int

const (
	// RespNone means no frame is written. Power commands are not answered.
	RespNone ResponseKind = iota
	// RespAck is an empty payload.
	RespAck
	// RespATR carries the cached ATR.
	RespATR
	// RespAPDU carries the card's response APDU.
	RespAPDU
)

// Response is the outcome of applying a Command to the card.
type Response struct {
	Kind ResponseKind
	Data []byte
}

// HasReply reports whether a frame must be written for this response.
func (r Response) HasReply() bool {
	return r.Kind != RespNone
}

// Payload returns the frame payload for the response.
func (r Response) Payload() []byte {
	switch r.Kind {
	case RespATR, RespAPDU:
		return r.Data
	default:
		return []byte{}
	}
}

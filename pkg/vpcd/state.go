package vpcd

import "fmt"

// CARD STATE MACHINE:
//
//   PowerOn   (any) -> On   produce ATR, cache it
//   PowerOff  (any) -> Off  drop cached ATR
//   Reset     On    -> On   produce ATR again, replace cache
//   Reset     Off   -> Off  no-op, card is not called
//   GetAtr    On    -> On   reply cached ATR
//   GetAtr    Off   -> Off  StateError, empty reply
//   APDU      On    -> On   forward to card, reply its response
//   APDU      Off   -> Off  StateError, empty reply, card is not called

// PowerState is the power state of the virtual card.
type PowerState int

const (
	Off PowerState = iota
	On
)

func (s PowerState) String() string {
	switch s {
	case Off:
		return "Off"
	case On:
		return "On"
	default:
		return fmt.Sprintf("PowerState(%d)", int(s))
	}
}

// Machine tracks the power state of one card. It is owned by a single session
// and is not safe for concurrent use.
type Machine struct {
	card  Card
	state PowerState
	atr   []byte
}

// NewMachine creates a machine in the Off state.
func NewMachine(card Card) *Machine {
	return &Machine{card: card, state: Off}
}

// State returns the current power state.
func (m *Machine) State() PowerState {
	return m.state
}

// ATR returns the ATR cached for the current power cycle, or nil when Off.
func (m *Machine) ATR() []byte {
	return m.atr
}

// Apply executes cmd against the card.
// A StateError is returned together with the empty response that must be sent.
func (m *Machine) Apply(cmd Command) (Response, error) {
	switch cmd.Kind {
	case CmdPowerOn:
		if h, ok := m.card.(PowerHandler); ok {
			h.PowerOn()
		}
		m.state = On
		m.atr = cloneBytes(m.card.ATR())
		return Response{Kind: RespNone}, nil

	case CmdPowerOff:
		if h, ok := m.card.(PowerHandler); ok {
			h.PowerOff()
		}
		m.state = Off
		m.atr = nil
		return Response{Kind: RespNone}, nil

	case CmdReset:
		if m.state == Off {
			return Response{Kind: RespNone}, nil
		}
		if h, ok := m.card.(PowerHandler); ok {
			h.Reset()
		}
		m.atr = cloneBytes(m.card.ATR())
		return Response{Kind: RespNone}, nil

	case CmdGetATR:
		if m.state == Off {
			return Response{Kind: RespAck}, &StateError{Command: cmd.Kind, State: m.state}
		}
		return Response{Kind: RespATR, Data: m.atr}, nil

	case CmdAPDU:
		if m.state == Off {
			return Response{Kind: RespAck}, &StateError{Command: cmd.Kind, State: m.state}
		}
		return Response{Kind: RespAPDU, Data: m.card.HandleAPDU(cmd.APDU)}, nil

	default:
		return Response{Kind: RespNone}, fmt.Errorf("vpcd: unhandled command %s", cmd.Kind)
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

package vpcd

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/vsmartcard/pkg/logging"
	"github.com/gregLibert/vsmartcard/pkg/tlv"
)

var (
	framePowerOff = tlv.Hex("00 01 00")
	framePowerOn  = tlv.Hex("00 01 01")
	frameReset    = tlv.Hex("00 01 02")
	frameGetATR   = tlv.Hex("00 01 04")
	frameSelect   = tlv.Hex("00 05", "00 A4 04 00 00")
)

func runScript(t *testing.T, card Card, opts []Option, frames ...[]byte) (*Session, *scriptedConn, error) {
	t.Helper()
	conn := newScriptedConn(frames...)
	opts = append([]Option{WithLogger(logging.ForTest(t))}, opts...)
	s := NewSession(conn, card, opts...)
	return s, conn, s.Run()
}

func TestSession_ScenarioA_PowerOn(t *testing.T) {
	card := &recordingCard{}
	s, conn, err := runScript(t, card, nil, framePowerOn)

	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected orderly close, got %v", err)
	}
	if s.State() != On {
		t.Errorf("state = %s, want On", s.State())
	}
	if card.atrCalls != 1 {
		t.Errorf("ATR() called %d times, want 1", card.atrCalls)
	}
	if conn.out.Len() != 0 {
		t.Errorf("PowerOn must not be answered, wrote %X", conn.out.Bytes())
	}
}

func TestSession_ScenarioB_APDUWhileOff(t *testing.T) {
	card := &recordingCard{}
	s, conn, _ := runScript(t, card, nil, frameSelect)

	if want := tlv.Hex("00 00"); !bytes.Equal(conn.out.Bytes(), want) {
		t.Errorf("response = %X, want %X", conn.out.Bytes(), want)
	}
	if card.apduCalls != 0 {
		t.Errorf("HandleAPDU called %d times while Off", card.apduCalls)
	}
	if st := s.Stats(); st.StateErrors != 1 || st.APDUs != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSession_ScenarioC_EchoWhileOn(t *testing.T) {
	card := &recordingCard{}
	_, conn, _ := runScript(t, card, nil, framePowerOn, frameSelect)

	if !bytes.Equal(conn.out.Bytes(), frameSelect) {
		t.Errorf("response = %X, want %X", conn.out.Bytes(), frameSelect)
	}
	if card.apduCalls != 1 {
		t.Errorf("HandleAPDU called %d times, want 1", card.apduCalls)
	}
}

func TestSession_ScenarioD_ResetWhileOff(t *testing.T) {
	card := &recordingCard{}
	s, conn, _ := runScript(t, card, nil, framePowerOff, frameReset)

	if s.State() != Off {
		t.Errorf("state = %s, want Off", s.State())
	}
	if card.atrCalls != 0 {
		t.Errorf("ATR() called %d times, want 0", card.atrCalls)
	}
	if conn.out.Len() != 0 {
		t.Errorf("no reply expected, wrote %X", conn.out.Bytes())
	}
}

func TestSession_GetATR(t *testing.T) {
	card := &recordingCard{}
	_, conn, _ := runScript(t, card, nil,
		frameGetATR,   // Off: empty reply
		framePowerOn,  // ATR 3B 00
		frameGetATR,   // -> 3B 00
		frameReset,    // ATR 3B 01
		frameGetATR,   // -> 3B 01
		framePowerOff, // drops ATR
		frameGetATR,   // Off: empty reply
	)

	want := tlv.Hex(
		"00 00",
		"00 02 3B 00",
		"00 02 3B 01",
		"00 00",
	)
	if !bytes.Equal(conn.out.Bytes(), want) {
		t.Errorf("responses = %X, want %X", conn.out.Bytes(), want)
	}
}

func TestSession_ConnectionClosedMidFrame(t *testing.T) {
	var events []Event
	card := &recordingCard{}
	_, _, err := runScript(t, card,
		[]Option{WithEventHandler(func(ev Event) { events = append(events, ev) })},
		framePowerOn, tlv.Hex("00 05", "00 A4"),
	)

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectionError, got %v", err)
	}
	if errors.Is(err, ErrClosed) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected an unexpected EOF, got %v", err)
	}
	if card.apduCalls != 0 {
		t.Error("truncated APDU must not reach the card")
	}
	if len(events) == 0 || events[len(events)-1].Kind != EventTerminated {
		t.Errorf("last event should be termination, got %+v", events)
	}
}

func TestSession_ProtocolErrorPolicy(t *testing.T) {
	badFrame := tlv.Hex("00 01 07")

	t.Run("Terminate", func(t *testing.T) {
		s, _, err := runScript(t, &recordingCard{}, nil, badFrame, framePowerOn)

		var protoErr *ProtocolError
		if !errors.As(err, &protoErr) {
			t.Fatalf("expected *ProtocolError, got %v", err)
		}
		if s.State() != Off {
			t.Error("frames after the protocol error must not be processed")
		}
	})

	t.Run("Skip", func(t *testing.T) {
		var kinds []EventKind
		opts := []Option{
			WithProtocolErrorPolicy(SkipOnProtocolError),
			WithEventHandler(func(ev Event) { kinds = append(kinds, ev.Kind) }),
		}
		s, conn, err := runScript(t, &recordingCard{}, opts, badFrame, framePowerOn)

		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected orderly close, got %v", err)
		}
		if s.State() != On {
			t.Errorf("state = %s, want On", s.State())
		}
		if conn.out.Len() != 0 {
			t.Errorf("skipped frame must not be answered, wrote %X", conn.out.Bytes())
		}
		want := []EventKind{EventProtocolError, EventCommand, EventTerminated}
		if diff := cmp.Diff(want, kinds); diff != "" {
			t.Errorf("Events mismatch (-want +got):\n%s", diff)
		}
		if s.Stats().ProtocolErrors != 1 {
			t.Errorf("ProtocolErrors = %d, want 1", s.Stats().ProtocolErrors)
		}
	})
}

func TestSession_OversizedResponse(t *testing.T) {
	card := CardFunc(func([]byte) []byte { return make([]byte, MaxPayloadLen+1) })
	_, _, err := runScript(t, card, nil, framePowerOn, frameSelect)

	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

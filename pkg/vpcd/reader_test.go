package vpcd

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/gregLibert/vsmartcard/pkg/logging"
)

// startPipe runs a session for card on one end of an in-memory connection and
// returns a Reader on the other end. The returned channel yields Run's result.
func startPipe(t *testing.T, card Card) (*Reader, net.Conn, <-chan error) {
	t.Helper()
	daemonSide, cardSide := net.Pipe()

	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		done <- NewSession(cardSide, card, WithLogger(logging.ForTest(t))).Run()
		cardSide.Close()
	}()

	t.Cleanup(func() {
		daemonSide.Close()
		<-finished
	})
	return NewReader(daemonSide), daemonSide, done
}

func TestReader_EndToEnd(t *testing.T) {
	card := &recordingCard{}
	reader, conn, done := startPipe(t, card)

	atr, err := reader.ATR()
	if err != nil {
		t.Fatalf("ATR failed: %v", err)
	}
	if len(atr) != 0 {
		t.Errorf("ATR while Off = %X, want empty", atr)
	}

	if err := reader.PowerOn(); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}
	atr, err = reader.ATR()
	if err != nil {
		t.Fatalf("ATR failed: %v", err)
	}
	if !bytes.Equal(atr, []byte{0x3B, 0x00}) {
		t.Errorf("ATR = %X, want 3B00", atr)
	}

	apdu := []byte{0x00, 0xCA, 0x9F, 0x7F, 0x00}
	resp, err := reader.Transmit(apdu)
	if err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if !bytes.Equal(resp, apdu) {
		t.Errorf("Transmit = %X, want echo %X", resp, apdu)
	}

	if err := reader.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := reader.PowerOff(); err != nil {
		t.Fatalf("PowerOff failed: %v", err)
	}
	resp, err = reader.Transmit(apdu)
	if err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("Transmit while Off = %X, want empty", resp)
	}

	conn.Close()
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("expected orderly close, got %v", err)
	}
	if card.apduCalls != 1 {
		t.Errorf("HandleAPDU called %d times, want 1", card.apduCalls)
	}
}

func TestReader_RejectsShortAPDU(t *testing.T) {
	reader, _, _ := startPipe(t, &recordingCard{})

	if _, err := reader.Transmit([]byte{0x00}); !errors.Is(err, ErrAmbiguousAPDU) {
		t.Errorf("expected ErrAmbiguousAPDU, got %v", err)
	}
}

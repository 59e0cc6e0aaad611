package vpcd

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/gregLibert/vsmartcard/pkg/tlv"
)

func TestFrame_RoundTrip(t *testing.T) {
	sizes := []int{0, 1, 2, 5, 255, 256, 4096, MaxPayloadLen}

	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i * 7)
		}

		var buf bytes.Buffer
		if err := WriteFrame(&buf, payload); err != nil {
			t.Fatalf("size %d: WriteFrame failed: %v", size, err)
		}
		if buf.Len() != HeaderLen+size {
			t.Fatalf("size %d: wrote %d bytes, want %d", size, buf.Len(), HeaderLen+size)
		}

		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("size %d: ReadFrame failed: %v", size, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("size %d: payload mismatch", size)
		}
	}
}

func TestFrame_WireBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, tlv.Hex("00 A4 04 00 00")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	want := tlv.Hex("00 05", "00 A4 04 00 00")
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("wire = %X, want %X", buf.Bytes(), want)
	}
}

func TestFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxPayloadLen+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written, got %d bytes", buf.Len())
	}
}

func TestReadFrame_Errors(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		wantClosed bool
		wantErr    error
	}{
		{
			name:       "Clean EOF on frame boundary",
			input:      nil,
			wantClosed: true,
		},
		{
			name:    "EOF inside length prefix",
			input:   []byte{0x00},
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "EOF before payload",
			input:   tlv.Hex("00 05"),
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "EOF inside payload",
			input:   tlv.Hex("00 05", "00 A4"),
			wantErr: io.ErrUnexpectedEOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input))

			var connErr *ConnectionError
			if !errors.As(err, &connErr) {
				t.Fatalf("expected *ConnectionError, got %T (%v)", err, err)
			}
			if got := errors.Is(err, ErrClosed); got != tt.wantClosed {
				t.Errorf("errors.Is(err, ErrClosed) = %v, want %v", got, tt.wantClosed)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

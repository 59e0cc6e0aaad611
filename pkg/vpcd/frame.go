package vpcd

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
)

// FRAMING:
// Every message in both directions is a 2-byte big-endian length followed by
// exactly that many payload bytes:
//
//   [Length:2B BE][Payload:Length bytes]
//
// There is no idle or read timeout in the protocol. ReadFrame blocks until a
// frame arrives or the stream is closed; callers cancel by closing the stream.

const (
	// HeaderLen is the size of the length prefix.
	HeaderLen = 2

	// MaxPayloadLen is the largest payload the length prefix can announce.
	MaxPayloadLen = 0xFFFF
)

// ReadFrame reads one complete frame and returns its payload.
//
// A stream that ends before the first prefix byte yields a ConnectionError
// wrapping ErrClosed. A stream that ends anywhere inside a frame yields a
// ConnectionError wrapping io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, readError(err)
	}

	size := binary.BigEndian.Uint16(hdr[:])
	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, readError(err)
		}
	}
	return payload, nil
}

// WriteFrame writes the length prefix and payload in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	buf, err := AppendFrame(make([]byte, 0, HeaderLen+len(payload)), payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// AppendFrame appends the wire encoding of payload to dst.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return dst, ErrFrameTooLarge
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)))
	return append(dst, payload...), nil
}

func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return &ConnectionError{Op: "read", Err: ErrClosed}
	}
	return &ConnectionError{Op: "read", Err: err}
}

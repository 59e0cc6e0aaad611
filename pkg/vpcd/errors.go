package vpcd

import (
	"errors"
	"fmt"
)

// ERROR TAXONOMY:
// 1. ConnectionError: the stream failed or the peer went away. Always fatal for the session.
// 2. ProtocolError:   a frame could not be decoded. The embedding application chooses
//                     whether to skip the frame or end the session (see ProtocolErrorPolicy).
// 3. StateError:      a command is not legal in the current power state. Always recovered
//                     with an empty reply.

var (
	// ErrClosed marks an orderly close: the peer hung up on a frame boundary.
	ErrClosed = errors.New("vpcd: connection closed")

	// ErrFrameTooLarge is returned when a payload does not fit the 16-bit length prefix.
	ErrFrameTooLarge = errors.New("vpcd: frame payload exceeds 65535 bytes")

	// ErrAmbiguousAPDU is returned by the reader side for APDUs that would be
	// indistinguishable from control frames on the wire.
	ErrAmbiguousAPDU = errors.New("vpcd: APDU shorter than 2 bytes cannot be framed")
)

// ConnectionError reports an I/O failure on the underlying stream.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("vpcd: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a frame whose payload is not a valid command.
type ProtocolError struct {
	Payload []byte
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("vpcd: protocol error: %s (payload %X)", e.Reason, e.Payload)
}

// StateError reports a command that is illegal in the current power state.
type StateError struct {
	Command CommandKind
	State   PowerState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("vpcd: %s not allowed while card is %s", e.Command, e.State)
}

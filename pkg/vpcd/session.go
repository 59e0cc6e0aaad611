package vpcd

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// SESSION LOOP:
// A Session drives one connection end to end, one frame at a time:
//
//   read frame -> decode -> apply to Machine -> (card) -> write reply -> read frame ...
//
// It runs until the stream fails or is closed. There is no stop command in the
// protocol: closing the connection from either end is the only way to end it.
// Protocol errors are surfaced as events and handled according to the policy.

// ProtocolErrorPolicy decides what happens after a frame fails to decode.
type ProtocolErrorPolicy int

const (
	// TerminateOnProtocolError ends the session and returns the ProtocolError from Run.
	TerminateOnProtocolError ProtocolErrorPolicy = iota
	// SkipOnProtocolError drops the offending frame without a reply and keeps going.
	SkipOnProtocolError
)

func (p ProtocolErrorPolicy) String() string {
	if p == SkipOnProtocolError {
		return "skip"
	}
	return "terminate"
}

// EventKind classifies session events.
type EventKind int

const (
	EventCommand EventKind = iota
	EventProtocolError
	EventStateError
	EventTerminated
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventProtocolError:
		return "protocol_error"
	case EventStateError:
		return "state_error"
	case EventTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is reported to the handler installed with WithEventHandler.
type Event struct {
	Kind    EventKind
	Command Command
	State   PowerState
	Err     error
}

// Stats holds per-session counters.
type Stats struct {
	Frames         uint64
	APDUs          uint64
	ProtocolErrors uint64
	StateErrors    uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Raw frames are logged at trace level.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithProtocolErrorPolicy sets the policy applied to undecodable frames.
func WithProtocolErrorPolicy(p ProtocolErrorPolicy) Option {
	return func(s *Session) {
		s.policy = p
	}
}

// WithEventHandler installs a callback invoked synchronously for every event.
func WithEventHandler(fn func(Event)) Option {
	return func(s *Session) {
		s.onEvent = fn
	}
}

// Session is one connection to the daemon with one virtual card behind it.
type Session struct {
	rw      io.ReadWriter
	machine *Machine
	log     zerolog.Logger
	policy  ProtocolErrorPolicy
	onEvent func(Event)

	stats struct {
		frames         atomic.Uint64
		apdus          atomic.Uint64
		protocolErrors atomic.Uint64
		stateErrors    atomic.Uint64
	}
}

// NewSession binds card to an already connected stream. The card starts powered off.
func NewSession(rw io.ReadWriter, card Card, opts ...Option) *Session {
	s := &Session{
		rw:      rw,
		machine: NewMachine(card),
		log:     zerolog.Nop(),
		policy:  TerminateOnProtocolError,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current power state of the card.
func (s *Session) State() PowerState {
	return s.machine.State()
}

// Stats returns a snapshot of the session counters. It is safe to call from
// another goroutine.
func (s *Session) Stats() Stats {
	return Stats{
		Frames:         s.stats.frames.Load(),
		APDUs:          s.stats.apdus.Load(),
		ProtocolErrors: s.stats.protocolErrors.Load(),
		StateErrors:    s.stats.stateErrors.Load(),
	}
}

// Run processes frames until the connection ends or a protocol error terminates
// the session. It always returns a non-nil error; errors.Is(err, ErrClosed)
// reports an orderly close by the peer.
func (s *Session) Run() error {
	for {
		if err := s.Poll(); err != nil {
			s.emit(Event{Kind: EventTerminated, State: s.machine.State(), Err: err})
			s.log.Debug().Err(err).Msg("session terminated")
			return err
		}
	}
}

// Poll reads and handles exactly one frame.
func (s *Session) Poll() error {
	payload, err := ReadFrame(s.rw)
	if err != nil {
		return err
	}
	s.stats.frames.Add(1)
	s.log.Trace().Hex("payload", payload).Msg("frame received")

	cmd, err := DecodeCommand(payload)
	if err != nil {
		s.stats.protocolErrors.Add(1)
		s.emit(Event{Kind: EventProtocolError, State: s.machine.State(), Err: err})
		if s.policy == SkipOnProtocolError {
			s.log.Warn().Err(err).Msg("dropping undecodable frame")
			return nil
		}
		return err
	}

	if cmd.Kind == CmdAPDU {
		s.stats.apdus.Add(1)
	}

	resp, err := s.machine.Apply(cmd)
	var stateErr *StateError
	switch {
	case errors.As(err, &stateErr):
		s.stats.stateErrors.Add(1)
		s.log.Debug().Err(err).Msg("command rejected")
		s.emit(Event{Kind: EventStateError, Command: cmd, State: s.machine.State(), Err: err})
	case err != nil:
		return err
	default:
		s.log.Debug().Stringer("command", cmd).Stringer("state", s.machine.State()).Msg("command handled")
		s.emit(Event{Kind: EventCommand, Command: cmd, State: s.machine.State()})
	}

	if !resp.HasReply() {
		return nil
	}
	out := resp.Payload()
	s.log.Trace().Hex("payload", out).Msg("frame sent")
	return WriteFrame(s.rw, out)
}

func (s *Session) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

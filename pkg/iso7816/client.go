package iso7816

import (
	"errors"
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client is the host-side driver over a Transmitter. It hides two T=0
// transport behaviors from the caller:
//
// 1. "61 XX" (Response Available): a GET RESPONSE with Le = XX is sent on the
//    same logical channel.
// 2. "6C XX" (Wrong Length): the original command is re-sent with Le = XX.
//
// Send returns the Trace of every exchange made to fulfill one logical request.
// A card that keeps answering 61XX or 6CXX is cut off after MaxFollowUps.

// DefaultMaxFollowUps bounds the GET RESPONSE / re-send chain of a single Send.
const DefaultMaxFollowUps = 8

// ErrTooManyFollowUps is returned when the card never settles on a final status.
var ErrTooManyFollowUps = errors.New("too many 61XX/6CXX follow-ups")

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card         Transmitter
	MaxFollowUps int
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card, MaxFollowUps: DefaultMaxFollowUps}
}

// Send transmits a command and handles protocol logic (61xx, 6Cxx).
// On error the trace gathered so far is returned with it.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var trace Trace

	for next := cmd; next != nil; {
		if len(trace) > c.MaxFollowUps {
			return trace, fmt.Errorf("%w (%d exchanges)", ErrTooManyFollowUps, len(trace))
		}

		resp, err := c.exchange(next)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: next, Response: resp})
		next = followUp(next, resp.Status)
	}

	return trace, nil
}

func (c *Client) exchange(cmd *CommandAPDU) (*ResponseAPDU, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	return ParseResponseAPDU(rawResp)
}

// followUp returns the command the status word asks for, or nil when the
// exchange is complete.
func followUp(cmd *CommandAPDU, sw StatusWord) *CommandAPDU {
	switch sw.SW1() {
	case 0x61:
		// GET RESPONSE must use the same logical channel as the original command.
		cls := cmd.Class
		cls.IsChained = false
		ins, _ := NewInstruction(INS_GET_RESPONSE)
		return NewCommandAPDU(cls, ins, 0x00, 0x00, nil, leFromSW2(sw.SW2()))

	case 0x6C:
		retry := *cmd
		retry.Ne = leFromSW2(sw.SW2())
		return &retry
	}
	return nil
}

// leFromSW2 maps the XX of 61XX/6CXX to Ne; 00 stands for 256.
func leFromSW2(sw2 byte) int {
	if sw2 == 0 {
		return MaxShortLe
	}
	return int(sw2)
}

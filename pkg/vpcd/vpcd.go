/*
Package vpcd implements the card side of the vpcd protocol used by the vsmartcard
project to plug virtual smart cards into PC/SC.

A virtual card (vpicc) and the vpcd daemon exchange length-prefixed frames over a
stream connection. The daemon sends control commands (power off, power on, reset,
get ATR) and command APDUs; the card answers ATR requests and APDUs.

# Components

  - Framing: ReadFrame / WriteFrame, a 2-byte big-endian length and the payload.
  - Codec: DecodeCommand turns a payload into a Command, Response.Payload builds replies.
  - Machine: the Off/On power state machine deciding which commands are legal.
  - Card: the emulation logic supplied by the application.
  - Session: the loop tying the above together for one connection.

# Usage Example: Connecting a Card to a Local Daemon

	conn, err := vpcd.Dial(ctx, vpcd.DefaultAddr)
	if err != nil {
	    log.Fatal(err)
	}
	defer conn.Close()

	card := vpcd.CardFunc(func(apdu []byte) []byte {
	    return []byte{0x90, 0x00}
	})

	err = vpcd.NewSession(conn, card).Run()
	if errors.Is(err, vpcd.ErrClosed) {
	    fmt.Println("daemon went away")
	}

# Timeouts

The protocol has no idle timeout and neither does this package: a session waits
for the next frame for as long as the connection stays open. Close the
connection to stop it.
*/
package vpcd

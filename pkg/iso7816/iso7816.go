/*
Package iso7816 implements the command and response units of ISO/IEC 7816-4
for both ends of the wire.

On the host side, CommandAPDU.Bytes encodes a command, Client sends it through
a Transmitter and follows 61XX/6CXX replies, and the resulting Trace records
every exchange. On the card side, ParseCommandAPDU decodes what the reader
sent, ParseSelect and ParseReadRecord interpret the two commands a payment
directory needs, and ResponseAPDU.Bytes produces the reply.

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: Various error conditions.

# Usage Example: Selecting an application

	client := iso7816.NewClient(reader)
	cls, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(iso7816.SelectByAID(cls, []byte("1PAY.SYS.DDF01")))
	if err != nil {
	    log.Fatal(err)
	}
	if !trace.IsSuccess() {
	    log.Fatalf("SELECT failed: %s", trace.Status().Verbose())
	}
	fmt.Printf("FCI: %X\n", trace.Data())

# Usage Example: Answering on the card side

	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
	    return iso7816.NewResponseAPDU(nil, iso7816.SW_ERR_WRONG_LENGTH).Bytes()
	}
	req, err := iso7816.ParseSelect(cmd)
	...
*/
package iso7816

package iso7816

import (
	"fmt"

	"github.com/gregLibert/vsmartcard/pkg/bits"
)

// Class Byte (CLA) Structure according to ISO/IEC 7816-4.
//
// The CLA byte conveys the command class, covering secure messaging (SM), command chaining,
// and logical channel selection.
//
// Structure:
// Bit 8: Proprietary (1) or Interindustry (0).
// Bit 7: Type of Interindustry (0=First, 1=Further).
// Bit 5: Command Chaining (0=Last/Only, 1=More follow).
//
// 1. First Interindustry Class (00xx xxxx):
//    - Bits 4-3: Secure Messaging (2 bits, 4 states).
//    - Bits 2-1: Logical Channel number (0-3).
//
// 2. Further Interindustry Class (01xx xxxx):
//    - Bit 6: Secure Messaging (1 bit: No SM or SM active).
//    - Bits 4-1: Logical Channel number minus 4 (encoding 0-15 for channels 4-19).

// SecureMessaging defines the security level applied to the APDU.
type SecureMessaging int

const (
	// SMNone indicates no secure messaging or no indication given.
	SMNone SecureMessaging = 0
	// SMProprietary indicates a proprietary secure messaging format (First Interindustry only).
	SMProprietary SecureMessaging = 1
	// SMHeaderNoProc indicates SM according to ISO, where the header is not processed.
	SMHeaderNoProc SecureMessaging = 2
	// SMHeaderAuth indicates SM according to ISO, where the header is authenticated (First Interindustry only).
	SMHeaderAuth SecureMessaging = 3
)

// Class represents the parsed ISO 7816-4 Class byte (CLA).
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8 // Logical channel number (0-19)
}

// NewClass creates a Class object by decoding a raw CLA byte.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{Raw: cla}

	// Bit 8 indicates proprietary class
	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	// Bit 5 is always Command Chaining
	c.IsChained = bits.IsSet(cla, 5)

	// Bit 7 determines the encoding structure
	if !bits.IsSet(cla, 7) {
		// First Interindustry Structure (00xx xxxx)
		// SM is on bits 4-3
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		// Channel is on bits 2-1
		c.Channel = bits.GetRange(cla, 2, 1)
	} else {
		// Further Interindustry Structure (01xx xxxx)
		// SM is on bit 6
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		} else {
			c.SecureMessaging = SMNone
		}
		// Channel offset is on bits 4-1 (Value + 4)
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	}

	return c, nil
}

// Encode converts the Class object back to its byte representation.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}

	var res byte

	if c.Channel <= 3 {
		// First Interindustry Encoding
		if c.IsChained {
			res = bits.Set(res, 5)
		}
		res = bits.SetRange(res, 4, 3, byte(c.SecureMessaging))
		res = bits.SetRange(res, 2, 1, c.Channel)
	} else {
		// Further Interindustry Encoding
		res = bits.Set(res, 7) // Indicator for Further Interindustry

		if c.IsChained {
			res = bits.Set(res, 5)
		}
		// SM (Bit 6)
		if c.SecureMessaging != SMNone {
			res = bits.Set(res, 6)
		}
		// Channels 4 to 19 are stored with an offset of 4.
		res = bits.SetRange(res, 4, 1, c.Channel-4)
	}

	return res, nil
}

// Interindustry reports whether the class belongs to the ISO/IEC 7816-4
// interindustry range (first or further).
func (c Class) Interindustry() bool {
	return !c.IsProprietary
}

// String renders the class as "CLA=00 ch0".
func (c Class) String() string {
	if c.IsProprietary {
		return fmt.Sprintf("CLA=%02X proprietary", c.Raw)
	}
	s := fmt.Sprintf("CLA=%02X ch%d", c.Raw, c.Channel)
	if c.IsChained {
		s += " chained"
	}
	if c.SecureMessaging != SMNone {
		s += fmt.Sprintf(" sm%d", c.SecureMessaging)
	}
	return s
}

package iso7816

import (
	"fmt"

	"github.com/gregLibert/vsmartcard/pkg/bits"
)

// Instruction Byte (INS) Logic according to ISO/IEC 7816-4.
//
// The INS byte identifies the command to be performed by the card.
//
// 1. Data Encoding (Bit 1):
//    When using the interindustry class, the least significant bit (Bit 1) often indicates
//    the format of the data field.
//    - 0: Standard or no specific formatting.
//    - 1: BER-TLV encoded data structure.
//    Example: READ BINARY (0xB0) vs READ BINARY (BER-TLV) (0xB1).
//
// 2. Reserved Ranges:
//    INS values where the upper nibble is '6' or '9' (0x6X or 0x9X) are invalid.
//    These values are reserved for Status Words (SW1) or transport layer control
//    procedures (ISO/IEC 7816-3).

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction codes from ISO/IEC 7816-4 that the emulators and the client use.
const (
	INS_DEACTIVATE_FILE       InsCode = 0x04
	INS_VERIFY                InsCode = 0x20
	INS_VERIFY_BER            InsCode = 0x21
	INS_CHANGE_REFERENCE_DATA InsCode = 0x24
	INS_ACTIVATE_FILE         InsCode = 0x44
	INS_MANAGE_CHANNEL        InsCode = 0x70
	INS_EXTERNAL_AUTHENTICATE InsCode = 0x82
	INS_GET_CHALLENGE         InsCode = 0x84
	INS_INTERNAL_AUTHENTICATE InsCode = 0x88
	INS_SELECT                InsCode = 0xA4
	INS_READ_BINARY           InsCode = 0xB0
	INS_READ_BINARY_BER       InsCode = 0xB1
	INS_READ_RECORD           InsCode = 0xB2
	INS_READ_RECORD_BER       InsCode = 0xB3
	INS_GET_RESPONSE          InsCode = 0xC0
	INS_ENVELOPE              InsCode = 0xC2
	INS_GET_DATA              InsCode = 0xCA
	INS_GET_DATA_BER          InsCode = 0xCB
	INS_UPDATE_BINARY         InsCode = 0xD6
	INS_PUT_DATA              InsCode = 0xDA
	INS_UPDATE_RECORD         InsCode = 0xDC
	INS_APPEND_RECORD         InsCode = 0xE2
)

var insCodeNames = map[InsCode]string{
	INS_DEACTIVATE_FILE:       "INS_DEACTIVATE_FILE",
	INS_VERIFY:                "INS_VERIFY",
	INS_VERIFY_BER:            "INS_VERIFY_BER",
	INS_CHANGE_REFERENCE_DATA: "INS_CHANGE_REFERENCE_DATA",
	INS_ACTIVATE_FILE:         "INS_ACTIVATE_FILE",
	INS_MANAGE_CHANNEL:        "INS_MANAGE_CHANNEL",
	INS_EXTERNAL_AUTHENTICATE: "INS_EXTERNAL_AUTHENTICATE",
	INS_GET_CHALLENGE:         "INS_GET_CHALLENGE",
	INS_INTERNAL_AUTHENTICATE: "INS_INTERNAL_AUTHENTICATE",
	INS_SELECT:                "INS_SELECT",
	INS_READ_BINARY:           "INS_READ_BINARY",
	INS_READ_BINARY_BER:       "INS_READ_BINARY_BER",
	INS_READ_RECORD:           "INS_READ_RECORD",
	INS_READ_RECORD_BER:       "INS_READ_RECORD_BER",
	INS_GET_RESPONSE:          "INS_GET_RESPONSE",
	INS_ENVELOPE:              "INS_ENVELOPE",
	INS_GET_DATA:              "INS_GET_DATA",
	INS_GET_DATA_BER:          "INS_GET_DATA_BER",
	INS_UPDATE_BINARY:         "INS_UPDATE_BINARY",
	INS_PUT_DATA:              "INS_PUT_DATA",
	INS_UPDATE_RECORD:         "INS_UPDATE_RECORD",
	INS_APPEND_RECORD:         "INS_APPEND_RECORD",
}

// String returns the constant name of a known instruction, or its hex value.
func (c InsCode) String() string {
	if name, ok := insCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(%02X)", byte(c))
}

// Instruction represents the parsed ISO 7816-4 Instruction byte (INS).
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction object with validation.
// It rejects '6X' and '9X' values as they are invalid according to ISO 7816-3.
func NewInstruction(ins InsCode) (Instruction, error) {
	// Validation: values starting with '6' or '9' are invalid for INS.
	highNibble := byte(ins) & 0xF0
	if highNibble == 0x60 || highNibble == 0x90 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", ins)
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1), // Bit 1 indicates BER-TLV preference
	}, nil
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw.String(), format)
}

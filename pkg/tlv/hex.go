package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

var hexSeparators = strings.NewReplacer(" ", "", ":", "", "\t", "", "\n", "", "\r", "")

// ParseHex joins parts and decodes them as hex. Spaces, colons and line
// breaks are ignored, so "3B 95 13", "3B:95:13" and "3B9513" are equivalent.
func ParseHex(parts ...string) ([]byte, error) {
	clean := hexSeparators.Replace(strings.Join(parts, ""))
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", clean, err)
	}
	return data, nil
}

// Hex is ParseHex for literals known to be valid. It panics on bad input.
func Hex(parts ...string) []byte {
	data, err := ParseHex(parts...)
	if err != nil {
		panic(err.Error())
	}
	return data
}

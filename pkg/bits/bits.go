// Package bits reads and writes the bit fields of ISO/IEC 7816 header bytes.
// Bits are numbered 1 (least significant) to 8, as in the standard's tables.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange extracts the value from a range of bits (e.g., bits 4 to 3).
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11)
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// Set returns b with the n-th bit set (1 to 8).
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Clear returns b with the n-th bit cleared (1 to 8).
func Clear(b byte, n uint) byte {
	return b &^ Bit(n)
}

// SetRange stores v in bits high to low of b and returns the result. Bits of
// v that do not fit the range are dropped; an invalid range returns b as is.
// Example: SetRange(0b00000100, 8, 4, 1) returns 0b00001100
func SetRange(b byte, high, low uint, v byte) byte {
	if high < low || high > 8 || low < 1 {
		return b
	}

	width := high - low + 1
	mask := byte((1<<width)-1) << (low - 1)

	return b&^mask | (v<<(low-1))&mask
}

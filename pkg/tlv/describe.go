package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// WriteStructFields appends the DescribeFields lines of s to sb, separated
// from earlier content by a newline. It never writes a trailing newline, so
// strings.Split on the result yields no empty last element.
func WriteStructFields(sb *strings.Builder, prefix string, s interface{}) {
	lines := DescribeFields(prefix, s)
	if len(lines) == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Join(lines, "\n"))
}

// DescribeFields returns one report line per non-empty byte-slice field of s
// and one per TLV held in its unknown field:
//
//	    - FCI.DFName (84): 315041592E... ("1PAY.SYS.DDF01")
//	    - FCI.Unknown Tag 9F01: 1234
//
// The `fmt` struct tag selects the rendering: "ascii", "int" or plain hex.
func DescribeFields(prefix string, s interface{}) []string {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	var lines []string
	for i := 0; i < v.NumField(); i++ {
		field, sf := v.Field(i), v.Type().Field(i)

		switch {
		case isByteSlice(field):
			if field.Len() == 0 {
				continue
			}
			value := formatByteValue(field.Bytes(), sf.Tag.Get("fmt"))
			lines = append(lines, fmt.Sprintf("    - %s.%s: %s", prefix, fieldLabel(sf), value))

		case field.Type() == packetsType:
			for _, p := range field.Interface().([]bertlv.TLV) {
				lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %X", prefix, p.Tag, p.Value))
			}
		}
	}
	return lines
}

func fieldLabel(sf reflect.StructField) string {
	if tag, unknown := parseTag(sf); tag != "" && !unknown {
		return fmt.Sprintf("%s (%s)", sf.Name, tag)
	}
	return sf.Name
}

func formatByteValue(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, MakeSafeASCII(data))
	case "int":
		var n uint64
		for _, b := range data {
			n = n<<8 | uint64(b)
		}
		return fmt.Sprintf("%X (Dec: %d)", data, n)
	default:
		return fmt.Sprintf("%X", data)
	}
}

// MakeSafeASCII replaces every byte outside printable ASCII with '.'.
func MakeSafeASCII(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b < 0x20 || b > 0x7E {
			b = '.'
		}
		out[i] = b
	}
	return string(out)
}

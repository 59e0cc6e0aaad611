package tlv

import (
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

var packetsType = reflect.TypeOf([]bertlv.TLV(nil))

// fieldSpec is one struct field mapped by a `tlv:"<tag>"` struct tag.
type fieldSpec struct {
	index int
	name  string
	tag   string // upper-case hex, empty for the unknown field
}

// structFields lists the tagged fields of t in declaration order, and the
// index of the field collecting unknown TLVs (-1 when there is none).
//
// The unknown field is tagged `tlv:",unknown"` or named Unknown, and has the
// type []bertlv.TLV.
func structFields(t reflect.Type) (fields []fieldSpec, unknown int) {
	unknown = -1
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, isUnknown := parseTag(sf)
		switch {
		case isUnknown:
			if sf.Type == packetsType {
				unknown = i
			}
		case tag != "":
			fields = append(fields, fieldSpec{index: i, name: sf.Name, tag: tag})
		}
	}
	return fields, unknown
}

func parseTag(sf reflect.StructField) (tag string, unknown bool) {
	raw := sf.Tag.Get("tlv")
	if raw == ",unknown" || sf.Name == "Unknown" {
		return "", true
	}
	tag, _, _ = strings.Cut(raw, ",")
	return strings.ToUpper(tag), false
}

func sameTag(a, b string) bool {
	return strings.EqualFold(a, b)
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

func isStructOrPtrToStruct(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Struct:
		return true
	case reflect.Ptr:
		return v.Type().Elem().Kind() == reflect.Struct
	}
	return false
}

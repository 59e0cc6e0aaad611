// Package tlv maps BER-TLV (Basic Encoding Rules - Tag-Length-Value) data to
// and from Go structures using `tlv` struct tags.
//
//	type Template struct {
//		AID     []byte       `tlv:"4F"`
//		Label   []byte       `tlv:"50" fmt:"ascii"`
//		Unknown []bertlv.TLV `tlv:",unknown"`
//	}
//
// Byte slices hold the raw value, strings its hex form, nested structs a
// constructed tag. A slice of structs collects every occurrence of its tag.
package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/moov-io/bertlv"
)

// Unmarshaler allows custom types to implement their own TLV parsing logic.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

// Unmarshal parses raw BER-TLV data and maps it into a target Go struct.
func Unmarshal(data []byte, target interface{}) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets maps pre-decoded TLVs to the struct target points to.
// TLVs no field claims go to the unknown field, if the struct has one.
func UnmarshalFromPackets(packets []bertlv.TLV, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("target must point to a struct, got %s", v.Kind())
	}

	fields, unknown := structFields(v.Type())
	consumed := make([]bool, len(packets))

	for _, f := range fields {
		field := v.Field(f.index)
		for i, packet := range packets {
			if !sameTag(packet.Tag, f.tag) {
				continue
			}
			if err := decodeField(packet, field); err != nil {
				return fmt.Errorf("field %s (%s): %w", f.name, f.tag, err)
			}
			consumed[i] = true
		}
	}

	if unknown < 0 {
		return nil
	}
	var leftovers []bertlv.TLV
	for i, packet := range packets {
		if !consumed[i] {
			leftovers = append(leftovers, packet)
		}
	}
	if len(leftovers) > 0 {
		v.Field(unknown).Set(reflect.ValueOf(leftovers))
	}
	return nil
}

// decodeField appends to repeated fields and overwrites the others.
func decodeField(packet bertlv.TLV, field reflect.Value) error {
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeValue(packet, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeValue(packet, field)
}

func decodeValue(packet bertlv.TLV, field reflect.Value) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(rawValue(packet))
		}
	}

	switch {
	case isByteSlice(field):
		field.SetBytes(rawValue(packet))

	case field.Kind() == reflect.String:
		field.SetString(hex.EncodeToString(rawValue(packet)))

	case isStructOrPtrToStruct(field):
		target := field
		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
		} else {
			target = field.Addr()
		}
		if len(packet.TLVs) > 0 {
			return UnmarshalFromPackets(packet.TLVs, target.Interface())
		}
		return Unmarshal(packet.Value, target.Interface())

	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

// rawValue returns the value bytes of p, re-encoding children of a
// constructed tag since bertlv.Decode leaves Value empty for those.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

// GetValue scans the top level of data for tag and returns its value.
func GetValue(data []byte, tag uint) ([]byte, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, err
	}

	want := fmt.Sprintf("%X", tag)
	for _, p := range packets {
		if sameTag(p.Tag, want) {
			return rawValue(p), nil
		}
	}
	return nil, fmt.Errorf("tag %s not found", want)
}

package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/moov-io/bertlv"
)

// Marshaler allows custom types to produce their own TLV value.
type Marshaler interface {
	MarshalTLV() ([]byte, error)
}

// Marshal encodes a tagged Go struct as BER-TLV. It reads the same `tlv`
// struct tags as Unmarshal, so Unmarshal(Marshal(v)) restores v.
//
// Empty byte slices, empty strings, nil pointers and nested structs without
// any set field are omitted. Entries of the unknown field are appended last.
func Marshal(source interface{}) ([]byte, error) {
	packets, err := MarshalToPackets(source)
	if err != nil {
		return nil, err
	}
	return bertlv.Encode(packets)
}

// MarshalToPackets converts a tagged struct into bertlv.TLV objects, in field order.
func MarshalToPackets(source interface{}) ([]bertlv.TLV, error) {
	v := reflect.ValueOf(source)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("source must not be a nil pointer")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("source must be a struct, got %s", v.Kind())
	}

	fields, unknownIdx := structFields(v.Type())

	var packets []bertlv.TLV
	for _, f := range fields {
		encoded, err := encodeField(f.tag, v.Field(f.index))
		if err != nil {
			return nil, fmt.Errorf("field %s (%s): %w", f.name, f.tag, err)
		}
		packets = append(packets, encoded...)
	}

	if unknownIdx < 0 {
		return packets, nil
	}
	unknown, _ := v.Field(unknownIdx).Interface().([]bertlv.TLV)
	return append(packets, unknown...), nil
}

// encodeField emits one TLV per element for repeated tags.
func encodeField(tag string, field reflect.Value) ([]bertlv.TLV, error) {
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		var out []bertlv.TLV
		for j := 0; j < field.Len(); j++ {
			p, ok, err := encodeValue(tag, field.Index(j))
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, p)
			}
		}
		return out, nil
	}

	p, ok, err := encodeValue(tag, field)
	if err != nil || !ok {
		return nil, err
	}
	return []bertlv.TLV{p}, nil
}

func encodeValue(tag string, field reflect.Value) (bertlv.TLV, bool, error) {
	if m, ok := asMarshaler(field); ok {
		data, err := m.MarshalTLV()
		if err != nil || len(data) == 0 {
			return bertlv.TLV{}, false, err
		}
		return bertlv.NewTag(tag, data), true, nil
	}

	switch {
	case isByteSlice(field):
		if field.Len() == 0 {
			return bertlv.TLV{}, false, nil
		}
		return bertlv.NewTag(tag, field.Bytes()), true, nil

	case field.Kind() == reflect.String:
		if field.Len() == 0 {
			return bertlv.TLV{}, false, nil
		}
		data, err := hex.DecodeString(field.String())
		if err != nil {
			return bertlv.TLV{}, false, fmt.Errorf("string field is not hex: %w", err)
		}
		return bertlv.NewTag(tag, data), true, nil

	case isStructOrPtrToStruct(field):
		if field.Kind() == reflect.Ptr && field.IsNil() {
			return bertlv.TLV{}, false, nil
		}
		children, err := MarshalToPackets(field.Interface())
		if err != nil || len(children) == 0 {
			return bertlv.TLV{}, false, err
		}
		return bertlv.NewComposite(tag, children...), true, nil
	}

	return bertlv.TLV{}, false, fmt.Errorf("unsupported kind %s", field.Kind())
}

func asMarshaler(field reflect.Value) (Marshaler, bool) {
	if field.CanAddr() {
		if m, ok := field.Addr().Interface().(Marshaler); ok {
			return m, true
		}
	}
	if field.Kind() == reflect.Ptr && field.IsNil() {
		return nil, false
	}
	m, ok := field.Interface().(Marshaler)
	return m, ok
}

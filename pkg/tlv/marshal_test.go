package tlv

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

func (c customType) MarshalTLV() ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(c.Val, "custom:"))
}

type entry struct {
	ID    []byte `tlv:"4F"`
	Label []byte `tlv:"50"`
}

type directory struct {
	Entries []entry `tlv:"61"`
	Extra   *entry  `tlv:"73"`
	Unknown []bertlv.TLV
}

func TestMarshal(t *testing.T) {
	src := testStruct{
		AID:     tlvHex("1122"),
		Label:   "414243",
		Details: nestedStruct{Version: []byte{0xFF}},
		Custom:  customType{Val: "custom:aa"},
		Other:   []bertlv.TLV{{Tag: "DF01", Value: []byte{0xBB}}},
	}

	got, err := Marshal(&src)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := tlvHex(
		"84", "02", "1122",
		"50", "03", "414243",
		"A5", "03", "8201FF",
		"9F02", "01", "AA",
		"DF01", "01", "BB",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Marshal mismatch (-want +got):\n%s", diff)
	}

	var back testStruct
	if err := Unmarshal(got, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.Label != src.Label || back.Custom.Val != src.Custom.Val || back.Details.Version[0] != 0xFF {
		t.Errorf("Unmarshal(Marshal(v)) = %+v", back)
	}
}

func TestMarshal_RepeatedAndOmitted(t *testing.T) {
	src := directory{
		Entries: []entry{
			{ID: tlvHex("A0000000031010"), Label: []byte("VISA")},
			{ID: tlvHex("A0000000041010")},
		},
	}

	got, err := Marshal(src)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := tlvHex(
		"61", "0F", "4F07A0000000031010", "500456495341",
		"61", "09", "4F07A0000000041010",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Marshal mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalErrors(t *testing.T) {
	if _, err := Marshal(42); err == nil {
		t.Error("expected error for non-struct source")
	}

	var nilPtr *testStruct
	if _, err := Marshal(nilPtr); err == nil {
		t.Error("expected error for nil pointer")
	}

	if _, err := Marshal(testStruct{Label: "not hex"}); err == nil {
		t.Error("expected error for non-hex string field")
	}
}

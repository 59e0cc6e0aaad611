package cmd

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/vsmartcard/pkg/config"
	"github.com/gregLibert/vsmartcard/pkg/logging"
)

func TestPickReader(t *testing.T) {
	readers := []string{"Gemalto USB 00 00", "Virtual PCD 00 00", "Virtual PCD 00 01"}

	tests := []struct {
		name    string
		readers []string
		want    string
		expect  string
		wantErr bool
	}{
		{"prefers vpcd", readers, "", "Virtual PCD 00 00", false},
		{"explicit name", readers, "Virtual PCD 00 01", "Virtual PCD 00 01", false},
		{"first reader fallback", []string{"Gemalto USB 00 00"}, "", "Gemalto USB 00 00", false},
		{"unknown name", readers, "Nope", "", true},
		{"no readers", nil, "", "", true},
	}

	for _, tt := range tests {
		got, err := pickReader(tt.readers, tt.want)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.expect {
			t.Errorf("%s: picked %q, want %q", tt.name, got, tt.expect)
		}
	}
}

func TestProbeLoopback(t *testing.T) {
	cfg := config.Default()
	cfg.Card = config.CardPayment

	exp, err := probeLoopback(cfg, logging.ForTest(t))
	if err != nil {
		t.Fatalf("probeLoopback failed: %v", err)
	}

	var aids []string
	for _, app := range exp.Applications {
		aids = append(aids, fmt.Sprintf("%04X %X", uint16(app.Status), app.AID))
	}
	want := []string{"9000 A0000000031010", "9000 A0000000041010"}
	if diff := cmp.Diff(want, aids); diff != "" {
		t.Errorf("Applications mismatch (-want +got):\n%s", diff)
	}
}

package core

import (
	"strconv"
	"testing"
	"time"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"iso", "2024-03-15", "2024-03-15", true},
		{"iso with time", "2024-03-15T08:30:00Z", "2024-03-15", true},
		{"iso with space time", "2024-03-15 08:30:00", "2024-03-15", true},
		{"french", "15/03/2024", "2024-03-15", true},
		{"french short", "5/3/2024", "2024-03-05", true},
		{"padded", "  15/03/2024 ", "2024-03-15", true},
		{"french dashes", "15-03-2024", "2024-03-15", true},
		{"french dashes short", "5-3-2024", "2024-03-05", true},
		{"invalid french dashes", "31-02-2024", "", false},
		{"serial", "45366", "2024-03-15", true},
		{"serial with fraction", "45366.75", "2024-03-15", true},
		{"serial epoch", "25569", "1970-01-01", true},
		{"empty", "", "", false},
		{"blank", "   ", "", false},
		{"invalid iso", "2024-02-30", "", false},
		{"invalid french", "31/02/2024", "", false},
		{"us style rejected", "03/15/2024", "", false},
		{"text", "hier", "", false},
		{"serial too small", "0", "", false},
		{"serial too large", "99999999", "", false},
		{"nan", "NaN", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeDate(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NormalizeDate(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeDate_SerialRoundTrip(t *testing.T) {
	start := time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := start; d.Year() < 2060; d = d.AddDate(0, 0, 37) {
		iso := d.Format(DateLayout)

		serial, ok := DateToSerial(iso)
		if !ok {
			t.Fatalf("DateToSerial(%q) failed", iso)
		}
		got, ok := NormalizeDate(strconv.FormatFloat(serial, 'f', -1, 64))
		if !ok || got != iso {
			t.Fatalf("NormalizeDate(DateToSerial(%q)) = (%q, %v)", iso, got, ok)
		}
		if again, _ := NormalizeDate(got); again != iso {
			t.Fatalf("NormalizeDate not idempotent on %q: %q", iso, again)
		}
	}
}

func TestDateToSerial_Invalid(t *testing.T) {
	if _, ok := DateToSerial("15/03/2024"); ok {
		t.Error("DateToSerial should only accept ISO dates")
	}
}

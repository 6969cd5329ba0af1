package hl7

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string // RFC3339 in UTC, "" when not parseable
	}{
		{"year only", "1980", "1980-01-01T00:00:00Z"},
		{"year month", "198006", "1980-06-01T00:00:00Z"},
		{"date", "19800101", "1980-01-01T00:00:00Z"},
		{"minute precision", "202312151230", "2023-12-15T12:30:00Z"},
		{"full", "20231215120000", "2023-12-15T12:00:00Z"},
		{"fractional", "20231215120000.1234", "2023-12-15T12:00:00Z"},
		{"offset", "20231215120000-0300", "2023-12-15T15:00:00Z"},
		{"offset positive", "20231215120000+0200", "2023-12-15T10:00:00Z"},
		{"empty", "", ""},
		{"garbage", "NOT A DATE", ""},
		{"wrong length", "202312151", ""},
		{"letters in digits", "2023121A", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDateTime(tt.value)
			if tt.want == "" {
				if ok {
					t.Errorf("expected parse failure, got %v", got)
				}
				return
			}
			if !ok {
				t.Fatalf("expected success for %q", tt.value)
			}
			if utc := got.UTC().Format(time.RFC3339); utc != tt.want {
				t.Errorf("ParseDateTime(%q) = %s, want %s", tt.value, utc, tt.want)
			}
		})
	}
}

func TestISODateKeepsRawOnFailure(t *testing.T) {
	if got := ISODate("19800101"); got != "1980-01-01" {
		t.Errorf("expected 1980-01-01, got %q", got)
	}
	// malformed upstream dates pass through untouched, never an error
	if got := ISODate("01/01/1980"); got != "01/01/1980" {
		t.Errorf("expected raw value back, got %q", got)
	}
}

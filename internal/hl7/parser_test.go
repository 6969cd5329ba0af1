package hl7

import (
	"errors"
	"strings"
	"testing"
)

const sampleADT = "MSH|^~\\&|TASY|HOSP|INTEGRA|BR|20231215120000||ADT^A01|MSG001|P|2.5\r" +
	"PID|1||123456^^^HOSP^MR~12345678909^^^CPF||SILVA^JOAO||19800101|M\r" +
	"PV1|1|I|CC^101^A^HOSP"

func TestParseHeader(t *testing.T) {
	msg, err := Parse([]byte(sampleADT))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Type != "ADT^A01" {
		t.Errorf("expected type ADT^A01, got %s", msg.Type)
	}
	if msg.ControlID != "MSG001" {
		t.Errorf("expected control id MSG001, got %s", msg.ControlID)
	}
	if msg.Version != "2.5" {
		t.Errorf("expected version 2.5, got %s", msg.Version)
	}
	if msg.Category() != "ADT" {
		t.Errorf("expected category ADT, got %s", msg.Category())
	}
	if msg.Trigger() != "A01" {
		t.Errorf("expected trigger A01, got %s", msg.Trigger())
	}
}

func TestParseDelimitersFromHeader(t *testing.T) {
	// nonstandard separators declared in MSH
	raw := "MSH#*~\\&#APP#FAC#DEST#BR#20230101##ORU*R01#C1#P#2.5\r" +
		"OBX#1#NM#GLU*Glucose##99"
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Delimiters.Field != '#' {
		t.Errorf("expected field separator '#', got %q", msg.Delimiters.Field)
	}
	if msg.Delimiters.Component != '*' {
		t.Errorf("expected component separator '*', got %q", msg.Delimiters.Component)
	}
	if msg.Type != "ORU*R01" {
		t.Errorf("expected type ORU*R01, got %s", msg.Type)
	}
	obx := msg.Segment("OBX")
	if got := msg.Delimiters.ComponentAt(obx.Field(3), 2); got != "Glucose" {
		t.Errorf("expected component Glucose, got %q", got)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"too short", "MSH|"},
		{"not MSH first", "PID|1||123456\rMSH|^~\\&|A|B|C|D|20230101||ADT^A01|1|P|2.5"},
		{"short encoding chars", "MSH|^~\\|APP|FAC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("expected ErrMalformedMessage, got %v", err)
			}
		})
	}
}

func TestSegmentLookup(t *testing.T) {
	raw := "MSH|^~\\&|LAB|HOSP|INTEGRA|BR|20230101||ORU^R01|C1|P|2.5\r" +
		"PID|1||99\r" +
		"OBR|1|PL1\r" +
		"OBX|1|NM|A||1\r" +
		"OBX|2|NM|B||2\r" +
		"OBX|3|ST|C||x"
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seg := msg.Segment("OBX"); seg == nil || seg.Field(1) != "1" {
		t.Errorf("Segment should return the first OBX occurrence")
	}
	all := msg.Segments("OBX")
	if len(all) != 3 {
		t.Fatalf("expected 3 OBX segments, got %d", len(all))
	}
	for i, seg := range all {
		if seg.Field(1) != string(rune('1'+i)) {
			t.Errorf("OBX %d out of source order: set id %s", i, seg.Field(1))
		}
	}
	if msg.Segment("ZZZ") != nil {
		t.Errorf("missing segment should return nil")
	}
}

func TestFieldIndexing(t *testing.T) {
	msg, err := Parse([]byte(sampleADT))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msh := msg.Segment("MSH")
	if got := msh.Field(9); got != "ADT^A01" {
		t.Errorf("MSH-9: expected ADT^A01, got %q", got)
	}
	if got := msh.Field(1); got != "|" {
		t.Errorf("MSH-1: expected the field separator, got %q", got)
	}
	if got := msh.Field(2); got != "^~\\&" {
		t.Errorf("MSH-2: expected encoding characters, got %q", got)
	}

	pid := msg.Segment("PID")
	if got := pid.Field(5); got != "SILVA^JOAO" {
		t.Errorf("PID-5: expected raw un-split value, got %q", got)
	}
	if got := pid.Field(3); got != "123456^^^HOSP^MR~12345678909^^^CPF" {
		t.Errorf("PID-3: expected raw repetitions, got %q", got)
	}
	if got := pid.Field(99); got != "" {
		t.Errorf("out-of-range field: expected empty, got %q", got)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	msg, err := Parse([]byte(sampleADT))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	again, err := Parse(msg.Encode())
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}

	if again.Type != msg.Type || again.ControlID != msg.ControlID || again.Version != msg.Version {
		t.Errorf("header changed across round trip: %+v vs %+v", again, msg)
	}
	if len(again.AllSegments()) != len(msg.AllSegments()) {
		t.Fatalf("segment count changed: %d vs %d", len(again.AllSegments()), len(msg.AllSegments()))
	}
	for i, seg := range msg.AllSegments() {
		other := again.AllSegments()[i]
		if other.Name != seg.Name {
			t.Errorf("segment %d name changed: %s vs %s", i, other.Name, seg.Name)
		}
		for f := 1; f <= seg.NumFields(); f++ {
			if other.Field(f) != seg.Field(f) {
				t.Errorf("%s-%d changed: %q vs %q", seg.Name, f, other.Field(f), seg.Field(f))
			}
		}
	}
}

func TestUnescape(t *testing.T) {
	d := DefaultDelimiters()
	tests := []struct {
		in, want string
	}{
		{`SMITH \T\ JONES`, "SMITH & JONES"},
		{`A\F\B`, "A|B"},
		{`A\S\B`, "A^B"},
		{`A\R\B`, "A~B"},
		{`A\E\B`, `A\B`},
		{`plain`, "plain"},
		{`\X0A\`, `\X0A\`}, // unknown sequence kept verbatim
	}
	for _, tt := range tests {
		if got := d.Unescape(tt.in); got != tt.want {
			t.Errorf("Unescape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	d := DefaultDelimiters()
	value := `HOSP|A^B~C&D\E`
	if got := d.Unescape(d.Escape(value)); got != value {
		t.Errorf("escape round trip changed value: %q", got)
	}
	if strings.ContainsAny(d.Escape(value), "|^~&") {
		t.Errorf("escaped value still contains delimiters: %q", d.Escape(value))
	}
}

func TestParseSegmentLine(t *testing.T) {
	d := DefaultDelimiters()
	seg, err := ParseSegment("PID|1||777", d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.Name != "PID" || seg.Field(3) != "777" {
		t.Errorf("unexpected segment: %s %q", seg.Name, seg.Field(3))
	}
	if _, err := ParseSegment("X", d); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage for short line, got %v", err)
	}
}

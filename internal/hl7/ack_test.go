package hl7

import (
	"strings"
	"testing"
)

func TestBuildACKCorrelation(t *testing.T) {
	original, err := Parse([]byte(sampleADT))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ack := BuildACK(original, AckAccept, "")
	if AckControlID(ack) != "MSG001" {
		t.Errorf("MSA-2 must echo the original control id, got %q", AckControlID(ack))
	}
	if AckCode(ack) != AckAccept {
		t.Errorf("expected AA, got %q", AckCode(ack))
	}
	if ack.Type != "ACK^A01" {
		t.Errorf("expected ACK^A01, got %q", ack.Type)
	}

	// sender and receiver swap
	msh := ack.Segment("MSH")
	if msh.Field(3) != "INTEGRA" || msh.Field(5) != "TASY" {
		t.Errorf("applications not swapped: sending=%q receiving=%q", msh.Field(3), msh.Field(5))
	}

	// the ACK must survive its own wire encoding
	again, err := Parse(ack.Encode())
	if err != nil {
		t.Fatalf("encoded ACK failed to parse: %v", err)
	}
	if AckControlID(again) != "MSG001" {
		t.Errorf("control id lost on wire: %q", AckControlID(again))
	}
}

func TestBuildNAKCarriesError(t *testing.T) {
	original, _ := Parse([]byte(sampleADT))

	nak := BuildACK(original, AckError, "duplicate patient id")
	if err := AckErr(nak); err == nil {
		t.Fatal("expected an error from a negative acknowledgment")
	} else if !strings.Contains(err.Error(), "duplicate patient id") {
		t.Errorf("remote text missing from error: %v", err)
	}

	ok := BuildACK(original, AckAccept, "")
	if err := AckErr(ok); err != nil {
		t.Errorf("AA must not be an error, got %v", err)
	}
}

func TestNewMessageGeneratesControlID(t *testing.T) {
	a := NewMessage(HeaderInfo{SendingApp: "INTEGRA", Type: "ORM^O01"})
	b := NewMessage(HeaderInfo{SendingApp: "INTEGRA", Type: "ORM^O01"})
	if a.ControlID == "" || a.ControlID == b.ControlID {
		t.Errorf("control ids must be unique and non-empty: %q vs %q", a.ControlID, b.ControlID)
	}
	if a.Segment("MSH").Field(10) != a.ControlID {
		t.Errorf("MSH-10 mismatch: %q", a.Segment("MSH").Field(10))
	}
}

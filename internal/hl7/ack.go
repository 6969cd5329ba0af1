package hl7

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ACK codes carried in MSA-1.
const (
	AckAccept = "AA"
	AckError  = "AE"
	AckReject = "AR"
)

// HeaderInfo describes the MSH fields of a message being built.
type HeaderInfo struct {
	SendingApp      string
	SendingFacility string
	ReceivingApp    string
	ReceivingFac    string
	Type            string // "ADT^A01"
	ControlID       string // generated when empty
	Version         string // defaults to 2.5
	Timestamp       time.Time
}

// NewMessage builds an empty outbound message with a populated MSH segment
// and default delimiters.
func NewMessage(h HeaderInfo) *Message {
	d := DefaultDelimiters()
	if h.ControlID == "" {
		h.ControlID = uuid.New().String()
	}
	if h.Version == "" {
		h.Version = "2.5"
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}

	msh := &Segment{Name: "MSH"}
	msh.SetField(1, string(d.Field))
	msh.SetField(2, d.EncodingChars())
	msh.SetField(3, h.SendingApp)
	msh.SetField(4, h.SendingFacility)
	msh.SetField(5, h.ReceivingApp)
	msh.SetField(6, h.ReceivingFac)
	msh.SetField(7, FormatDateTime(h.Timestamp))
	msh.SetField(9, h.Type)
	msh.SetField(10, h.ControlID)
	msh.SetField(11, "P")
	msh.SetField(12, h.Version)

	msg := &Message{
		Delimiters: d,
		Type:       h.Type,
		ControlID:  h.ControlID,
		Version:    h.Version,
	}
	msg.Append(msh)
	return msg
}

// BuildACK builds the acknowledgment for a received message. The MSA-2
// control id echoes the original message's control id so the sender can
// correlate the reply; sending/receiving applications are swapped.
func BuildACK(original *Message, code string, errorText string) *Message {
	msh := original.Segment("MSH")

	ack := NewMessage(HeaderInfo{
		SendingApp:      msh.Field(5),
		SendingFacility: msh.Field(6),
		ReceivingApp:    msh.Field(3),
		ReceivingFac:    msh.Field(4),
		Type:            "ACK" + string(original.delimComponent()) + original.Trigger(),
		Version:         original.Version,
	})

	msa := &Segment{Name: "MSA"}
	msa.SetField(1, code)
	msa.SetField(2, original.ControlID)
	if errorText != "" {
		msa.SetField(3, errorText)
	}
	ack.Append(msa)
	return ack
}

// AckCode extracts the MSA-1 acknowledgment code of a reply message.
func AckCode(msg *Message) string {
	if msa := msg.Segment("MSA"); msa != nil {
		return msa.Field(1)
	}
	return ""
}

// AckControlID extracts the MSA-2 correlated control id of a reply message.
func AckControlID(msg *Message) string {
	if msa := msg.Segment("MSA"); msa != nil {
		return msa.Field(2)
	}
	return ""
}

// AckErr converts a negative acknowledgment into an error carrying the
// remote text, or nil for AA/CA codes.
func AckErr(msg *Message) error {
	code := AckCode(msg)
	switch code {
	case AckAccept, "CA":
		return nil
	}
	text := ""
	if msa := msg.Segment("MSA"); msa != nil {
		text = msa.Field(3)
	}
	return fmt.Errorf("negative acknowledgment %s: %s", code, text)
}

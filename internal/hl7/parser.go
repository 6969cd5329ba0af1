package hl7

import (
	"fmt"
	"strings"
)

const segmentTerminator = '\r'

// minimum viable header: "MSH" + field separator + four encoding characters
const minHeaderLen = 8

// Parse builds a Message from raw HL7 text. The delimiters are read from
// the MSH header itself and fixed for the rest of the message. Returns
// ErrMalformedMessage when the text is too short, does not start with MSH,
// or declares fewer than four encoding characters.
func Parse(data []byte) (*Message, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\r")
	content = strings.ReplaceAll(content, "\n", "\r")
	content = strings.TrimRight(content, "\r ")

	if len(content) < minHeaderLen {
		return nil, fmt.Errorf("%w: message shorter than MSH header", ErrMalformedMessage)
	}
	if !strings.HasPrefix(content, "MSH") {
		return nil, fmt.Errorf("%w: first segment is %q, want MSH", ErrMalformedMessage, firstSegmentName(content))
	}

	fieldSep := content[3]
	encEnd := strings.IndexByte(content[4:], fieldSep)
	if encEnd < 0 {
		encEnd = len(content) - 4
	}
	if encEnd < 4 {
		return nil, fmt.Errorf("%w: encoding characters field has %d chars, want 4", ErrMalformedMessage, encEnd)
	}
	enc := content[4 : 4+4]

	d := Delimiters{
		Field:        fieldSep,
		Component:    enc[0],
		Repetition:   enc[1],
		EscapeChar:   enc[2],
		SubComponent: enc[3],
	}

	msg := &Message{
		Raw:        content,
		Delimiters: d,
	}

	for i, line := range strings.Split(content, string(segmentTerminator)) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) < 3 {
			return nil, fmt.Errorf("%w: segment %d too short: %q", ErrMalformedMessage, i+1, line)
		}

		seg := &Segment{Name: line[:3]}
		tokens := d.Fields(line)
		if seg.Name == "MSH" {
			// MSH-1 is the field separator, MSH-2 the encoding characters;
			// the first pipe-delimited token after "MSH" is already MSH-2.
			seg.fields = append([]string{string(fieldSep)}, tokens[1:]...)
		} else {
			seg.fields = tokens[1:]
		}
		msg.Append(seg)
	}

	msh := msg.Segment("MSH")
	msg.Type = msh.Field(9)
	msg.ControlID = msh.Field(10)
	msg.Version = msh.Field(12)

	return msg, nil
}

// ParseSegment builds a single segment from one raw line using the given
// delimiters. Used when assembling outbound messages from envelope payloads.
func ParseSegment(line string, d Delimiters) (*Segment, error) {
	line = strings.TrimSpace(line)
	if len(line) < 3 {
		return nil, fmt.Errorf("%w: segment line too short: %q", ErrMalformedMessage, line)
	}
	seg := &Segment{Name: line[:3]}
	seg.fields = d.Fields(line)[1:]
	return seg, nil
}

func firstSegmentName(content string) string {
	if len(content) >= 3 {
		return content[:3]
	}
	return content
}

// Category returns the message category without the trigger ("ADT" from
// "ADT^A01").
func (m *Message) Category() string {
	if i := strings.IndexByte(m.Type, m.delimComponent()); i >= 0 {
		return m.Type[:i]
	}
	return m.Type
}

// Trigger returns the trigger event ("A01" from "ADT^A01"), or "".
func (m *Message) Trigger() string {
	if i := strings.IndexByte(m.Type, m.delimComponent()); i >= 0 {
		return m.Type[i+1:]
	}
	return ""
}

func (m *Message) delimComponent() byte {
	if m.Delimiters.Component != 0 {
		return m.Delimiters.Component
	}
	return '^'
}

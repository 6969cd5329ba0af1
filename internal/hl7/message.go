package hl7

import (
	"errors"
	"strings"
)

// Parsing errors. Transport-level errors live in internal/mllp.
var (
	ErrMalformedMessage       = errors.New("malformed HL7 message")
	ErrWrongMessageType       = errors.New("wrong HL7 message type")
	ErrMissingRequiredSegment = errors.New("missing required HL7 segment")
)

// Segment is one named record inside a message. Fields are addressed with
// the 1-based HL7 field numbers (PID-3 is Field(3)).
type Segment struct {
	Name   string
	fields []string
}

// Field returns the raw, un-split field value for a 1-based index, or ""
// when the segment is shorter. Callers that need repetitions or components
// split the value through the message's Delimiters.
func (s *Segment) Field(index int) string {
	if index < 1 || index > len(s.fields) {
		return ""
	}
	return s.fields[index-1]
}

// SetField grows the segment as needed and sets a 1-based field value.
func (s *Segment) SetField(index int, value string) {
	if index < 1 {
		return
	}
	for len(s.fields) < index {
		s.fields = append(s.fields, "")
	}
	s.fields[index-1] = value
}

// NumFields reports the highest populated field number.
func (s *Segment) NumFields() int {
	return len(s.fields)
}

// Message is a parsed HL7 v2 message: the header metadata plus the ordered
// segment list. Segment order is the source order and a name may repeat.
type Message struct {
	Raw        string
	Delimiters Delimiters
	Type       string // e.g. "ADT^A01"
	ControlID  string
	Version    string
	segments   []*Segment
}

// Segment returns the first segment with the given name, or nil.
func (m *Message) Segment(name string) *Segment {
	for _, s := range m.segments {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Segments returns every occurrence of a segment name in source order.
// Required for repeating segments such as OBX and NK1.
func (m *Message) Segments(name string) []*Segment {
	var out []*Segment
	for _, s := range m.segments {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// AllSegments returns the full ordered segment list.
func (m *Message) AllSegments() []*Segment {
	return m.segments
}

// Append adds a segment at the end of the message. Used by vendor adapters
// to inject extension segments before send.
func (m *Message) Append(seg *Segment) {
	m.segments = append(m.segments, seg)
}

// Encode rebuilds the wire text of the message from its segments using the
// message's own delimiters. MSH-1/MSH-2 are rendered from the delimiter set,
// not from stored field values.
func (m *Message) Encode() []byte {
	d := m.Delimiters
	if d.Field == 0 {
		d = DefaultDelimiters()
	}
	sep := string(d.Field)

	var b strings.Builder
	for _, s := range m.segments {
		if b.Len() > 0 {
			b.WriteByte(segmentTerminator)
		}
		if s.Name == "MSH" {
			b.WriteString("MSH")
			b.WriteString(sep)
			b.WriteString(d.EncodingChars())
			// MSH-1 and MSH-2 are the separators themselves
			for i := 3; i <= s.NumFields(); i++ {
				b.WriteString(sep)
				b.WriteString(s.Field(i))
			}
			continue
		}
		b.WriteString(s.Name)
		for i := 1; i <= s.NumFields(); i++ {
			b.WriteString(sep)
			b.WriteString(s.Field(i))
		}
	}
	b.WriteByte(segmentTerminator)
	return []byte(b.String())
}

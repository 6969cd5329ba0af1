package hl7

import "strings"

// Delimiters holds the separator characters a message declares in its MSH
// header. Every split operation for that message must go through the same
// Delimiters value; the defaults only apply when building messages from
// scratch.
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	EscapeChar   byte
	SubComponent byte
}

// DefaultDelimiters returns the standard HL7 v2 separators (|^~\&).
func DefaultDelimiters() Delimiters {
	return Delimiters{
		Field:        '|',
		Component:    '^',
		Repetition:   '~',
		EscapeChar:   '\\',
		SubComponent: '&',
	}
}

// EncodingChars renders the MSH-2 encoding characters field.
func (d Delimiters) EncodingChars() string {
	return string([]byte{d.Component, d.Repetition, d.EscapeChar, d.SubComponent})
}

// Fields splits a raw segment line into its field values.
func (d Delimiters) Fields(line string) []string {
	return strings.Split(line, string(d.Field))
}

// Repetitions splits a raw field into its repetitions (the ~ level).
func (d Delimiters) Repetitions(field string) []string {
	return strings.Split(field, string(d.Repetition))
}

// Components splits one field repetition into its components (the ^ level).
func (d Delimiters) Components(repetition string) []string {
	return strings.Split(repetition, string(d.Component))
}

// SubComponents splits a component into its sub-components (the & level).
func (d Delimiters) SubComponents(component string) []string {
	return strings.Split(component, string(d.SubComponent))
}

// ComponentAt returns the 1-based component of the first repetition of a
// raw field value, or "" when absent.
func (d Delimiters) ComponentAt(field string, index int) string {
	if index < 1 {
		return ""
	}
	reps := d.Repetitions(field)
	comps := d.Components(reps[0])
	if index > len(comps) {
		return ""
	}
	return comps[index-1]
}

// Unescape decodes the standard HL7 escape sequences (\F\ \S\ \T\ \R\ \E\)
// using this delimiter set. Unknown sequences are kept verbatim so that
// nonstandard senders do not lose data.
func (d Delimiters) Unescape(value string) string {
	esc := string(d.EscapeChar)
	if !strings.Contains(value, esc) {
		return value
	}

	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); {
		if value[i] != d.EscapeChar {
			b.WriteByte(value[i])
			i++
			continue
		}
		end := strings.IndexByte(value[i+1:], d.EscapeChar)
		if end < 0 {
			// Unterminated escape, keep as-is
			b.WriteString(value[i:])
			break
		}
		seq := value[i+1 : i+1+end]
		switch seq {
		case "F":
			b.WriteByte(d.Field)
		case "S":
			b.WriteByte(d.Component)
		case "T":
			b.WriteByte(d.SubComponent)
		case "R":
			b.WriteByte(d.Repetition)
		case "E":
			b.WriteByte(d.EscapeChar)
		default:
			b.WriteString(value[i : i+2+end])
		}
		i += end + 2
	}
	return b.String()
}

// Escape encodes delimiter characters inside a value so it can be embedded
// in a field without breaking the message structure.
func (d Delimiters) Escape(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case d.Field:
			b.WriteByte(d.EscapeChar)
			b.WriteByte('F')
			b.WriteByte(d.EscapeChar)
		case d.Component:
			b.WriteByte(d.EscapeChar)
			b.WriteByte('S')
			b.WriteByte(d.EscapeChar)
		case d.SubComponent:
			b.WriteByte(d.EscapeChar)
			b.WriteByte('T')
			b.WriteByte(d.EscapeChar)
		case d.Repetition:
			b.WriteByte(d.EscapeChar)
			b.WriteByte('R')
			b.WriteByte(d.EscapeChar)
		case d.EscapeChar:
			b.WriteByte(d.EscapeChar)
			b.WriteByte('E')
			b.WriteByte(d.EscapeChar)
		default:
			b.WriteByte(value[i])
		}
	}
	return b.String()
}

package hl7

import (
	"strings"
	"time"
)

// ParseDateTime decodes an HL7 TS/DTM value with partial precision:
// YYYY, YYYYMM, YYYYMMDD, YYYYMMDDHHMM, YYYYMMDDHHMMSS, optionally followed
// by a fractional part (.ffff) and a timezone offset (±ZZZZ). Upstream
// systems routinely send garbage dates, so this never fails: the second
// return value is false and callers keep the original string.
func ParseDateTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	loc := time.UTC
	if i := strings.IndexAny(value, "+-"); i > 0 {
		offset := value[i:]
		value = value[:i]
		if l, ok := parseOffset(offset); ok {
			loc = l
		} else {
			return time.Time{}, false
		}
	}
	if i := strings.IndexByte(value, '.'); i >= 0 {
		// fractional seconds are carried but not significant here
		value = value[:i]
	}

	var layout string
	switch len(value) {
	case 4:
		layout = "2006"
	case 6:
		layout = "200601"
	case 8:
		layout = "20060102"
	case 12:
		layout = "200601021504"
	case 14:
		layout = "20060102150405"
	default:
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseOffset(offset string) (*time.Location, bool) {
	if len(offset) != 5 {
		return nil, false
	}
	sign := 1
	if offset[0] == '-' {
		sign = -1
	}
	hh := int(offset[1]-'0')*10 + int(offset[2]-'0')
	mm := int(offset[3]-'0')*10 + int(offset[4]-'0')
	for _, c := range offset[1:] {
		if c < '0' || c > '9' {
			return nil, false
		}
	}
	return time.FixedZone(offset, sign*(hh*3600+mm*60)), true
}

// FormatDateTime renders a time in the HL7 DTM wire format.
func FormatDateTime(t time.Time) string {
	return t.Format("20060102150405")
}

// ISODate renders an HL7 date value as an ISO 8601 date, or returns the raw
// string when the value cannot be decoded.
func ISODate(value string) string {
	if t, ok := ParseDateTime(value); ok {
		return t.Format("2006-01-02")
	}
	return value
}

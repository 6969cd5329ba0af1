package clinical

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/integrasaude/hl7-engine/internal/hl7"
)

// ExtractORU turns a result message into a DiagnosticReport. The message
// type must start with "ORU" and an OBR segment must be present; every OBX
// following it becomes one Observation in source order.
func ExtractORU(msg *hl7.Message) (*DiagnosticReport, error) {
	if !strings.HasPrefix(msg.Type, "ORU") {
		return nil, fmt.Errorf("%w: got %q, want ORU*", hl7.ErrWrongMessageType, msg.Type)
	}
	obr := msg.Segment("OBR")
	if obr == nil {
		return nil, fmt.Errorf("%w: OBR", hl7.ErrMissingRequiredSegment)
	}
	d := msg.Delimiters

	report := &DiagnosticReport{
		ID:           d.ComponentAt(obr.Field(3), 1),
		OrderNumber:  d.ComponentAt(obr.Field(2), 1),
		ServiceCode:  codedField(obr.Field(4), d),
		ResultStatus: ResultStatus(obr.Field(25)),
	}
	if report.ID == "" {
		report.ID = msg.ControlID
	}
	if t, ok := hl7.ParseDateTime(obr.Field(7)); ok {
		report.ObservedAt = &t
	}
	if pid := msg.Segment("PID"); pid != nil {
		p := extractPatient(pid, d)
		report.Patient = &p
	}

	for _, obx := range msg.Segments("OBX") {
		report.Observations = append(report.Observations, extractObservation(obx, d))
	}
	return report, nil
}

func extractObservation(obx *hl7.Segment, d hl7.Delimiters) Observation {
	o := Observation{
		ID:             obx.Field(1),
		ValueType:      obx.Field(2),
		Identifier:     codedField(obx.Field(3), d),
		Value:          decodeValue(obx.Field(2), obx.Field(5), d),
		Units:          d.ComponentAt(obx.Field(6), 1),
		ReferenceRange: obx.Field(7),
		Status:         ResultStatus(obx.Field(11)),
	}
	for _, flag := range d.Repetitions(obx.Field(8)) {
		if flag != "" {
			o.AbnormalFlags = append(o.AbnormalFlags, AbnormalFlag(flag))
		}
	}
	if t, ok := hl7.ParseDateTime(obx.Field(14)); ok {
		o.Timestamp = &t
	}
	return o
}

// decodeValue interprets OBX-5 according to the declared OBX-2 value type.
// Numeric parse failure keeps the raw text rather than zeroing the value;
// encapsulated data is decomposed into type/encoding/payload.
func decodeValue(valueType, raw string, d hl7.Delimiters) ObservationValue {
	switch strings.ToUpper(valueType) {
	case "NM":
		text := strings.TrimSpace(raw)
		if n, err := strconv.ParseFloat(text, 64); err == nil {
			return ObservationValue{Numeric: &n}
		}
		return ObservationValue{Text: d.Unescape(raw)}
	case "ED":
		return ObservationValue{Encapsulated: decodeEncapsulated(raw, d)}
	default:
		return ObservationValue{Text: d.Unescape(raw)}
	}
}

// decodeEncapsulated splits an ED value. The wire shape is
// source^type^subtype^encoding^data; senders that omit the source
// application start directly at the type component, so both layouts are
// probed by looking for the data in the last component.
func decodeEncapsulated(raw string, d hl7.Delimiters) *EncapsulatedData {
	comps := d.Components(raw)
	ed := &EncapsulatedData{}
	switch {
	case len(comps) >= 5:
		ed.Type = comps[2]
		if ed.Type == "" {
			ed.Type = comps[1]
		}
		ed.Encoding = comps[3]
		ed.Data = comps[4]
	case len(comps) == 4:
		ed.Type = comps[0]
		ed.Encoding = comps[2]
		ed.Data = comps[3]
	default:
		ed.Data = raw
	}
	ed.IsPDF = strings.EqualFold(ed.Type, "PDF")
	ed.IsBase64 = strings.EqualFold(ed.Encoding, "Base64")
	return ed
}

// codedField splits a CE/CWE field into code^text.
func codedField(raw string, d hl7.Delimiters) CodedValue {
	comps := d.Components(d.Repetitions(raw)[0])
	cv := CodedValue{Code: comps[0]}
	if len(comps) >= 2 {
		cv.Label = d.Unescape(comps[1])
	}
	return cv
}

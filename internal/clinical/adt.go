package clinical

import (
	"fmt"
	"strings"

	"github.com/integrasaude/hl7-engine/internal/brdoc"
	"github.com/integrasaude/hl7-engine/internal/hl7"
)

// ExtractADT turns an ADT message into an AdmissionEvent. The message type
// must start with "ADT^A" and a PID segment must be present; PV1 and IN1
// are optional and their absence is not an error.
func ExtractADT(msg *hl7.Message) (*AdmissionEvent, error) {
	if !strings.HasPrefix(msg.Type, "ADT"+string(msg.Delimiters.Component)+"A") {
		return nil, fmt.Errorf("%w: got %q, want ADT^A*", hl7.ErrWrongMessageType, msg.Type)
	}
	pid := msg.Segment("PID")
	if pid == nil {
		return nil, fmt.Errorf("%w: PID", hl7.ErrMissingRequiredSegment)
	}

	event := &AdmissionEvent{
		Trigger: msg.Trigger(),
		Patient: extractPatient(pid, msg.Delimiters),
	}
	if pv1 := msg.Segment("PV1"); pv1 != nil {
		event.Visit = extractVisit(pv1, msg.Delimiters)
	}
	if in1 := msg.Segment("IN1"); in1 != nil {
		event.Insurance = extractInsurance(in1, msg.Delimiters)
	}
	return event, nil
}

func extractPatient(pid *hl7.Segment, d hl7.Delimiters) Patient {
	p := Patient{
		BirthDate: hl7.ISODate(pid.Field(7)),
		Gender:    ParseGender(pid.Field(8)),
		Phone:     d.ComponentAt(pid.Field(13), 1),
	}

	idList := pid.Field(3)
	if reps := d.Repetitions(idList); len(reps) > 0 {
		p.ID = d.Unescape(d.Components(reps[0])[0])
	}

	if name := pid.Field(5); name != "" {
		comps := d.Components(d.Repetitions(name)[0])
		p.Name.Family = d.Unescape(comps[0])
		for _, given := range comps[1:] {
			if given = d.Unescape(given); given != "" {
				p.Name.Given = append(p.Name.Given, given)
			}
		}
	}

	if addr := pid.Field(11); addr != "" {
		comps := d.Components(d.Repetitions(addr)[0])
		get := func(i int) string {
			if i <= len(comps) {
				return d.Unescape(comps[i-1])
			}
			return ""
		}
		p.Address = Address{
			Street:     get(1),
			City:       get(3),
			State:      get(4),
			PostalCode: get(5),
			Country:    get(6),
		}
	}

	cpf, cns := findNationalIDs(pid, d)
	if cpf != "" {
		p.CPF = validateID(cpf, brdoc.ValidateCPF)
	}
	if cns != "" {
		p.CNS = validateID(cns, brdoc.ValidateCNS)
	}
	return p
}

// findNationalIDs scans the PID-3 identifier list for CPF/CNS entries. The
// type code sits in component 5 (CX with assigning authority) or component
// 4 (the short shape some senders use); both are checked. When no CPF entry
// exists, PID-19 is tried as a legacy fallback if it holds 11 digits.
func findNationalIDs(pid *hl7.Segment, d hl7.Delimiters) (cpf, cns string) {
	for _, rep := range d.Repetitions(pid.Field(3)) {
		comps := d.Components(rep)
		if len(comps) == 0 || comps[0] == "" {
			continue
		}
		typeCode := ""
		if len(comps) >= 5 && comps[4] != "" {
			typeCode = comps[4]
		} else if len(comps) >= 4 {
			typeCode = comps[3]
		}
		switch strings.ToUpper(typeCode) {
		case "CPF":
			if cpf == "" {
				cpf = comps[0]
			}
		case "CNS":
			if cns == "" {
				cns = comps[0]
			}
		}
	}

	if cpf == "" {
		if legacy := brdoc.StripNonDigits(pid.Field(19)); len(legacy) == 11 {
			cpf = legacy
		}
	}
	return cpf, cns
}

func validateID(value string, validate func(string) error) *IDValidation {
	v := &IDValidation{Value: brdoc.StripNonDigits(value)}
	if err := validate(value); err != nil {
		v.Reason = err.Error()
	} else {
		v.Valid = true
	}
	return v
}

func extractVisit(pv1 *hl7.Segment, d hl7.Delimiters) *Visit {
	visit := &Visit{
		ID:    d.ComponentAt(pv1.Field(19), 1),
		Class: pv1.Field(2),
	}

	if loc := pv1.Field(3); loc != "" {
		comps := d.Components(d.Repetitions(loc)[0])
		get := func(i int) string {
			if i <= len(comps) {
				return comps[i-1]
			}
			return ""
		}
		visit.Location = Location{
			Room:     get(2),
			Bed:      get(3),
			Facility: get(4),
			Building: get(7),
			Floor:    get(8),
		}
	}

	if doc := pv1.Field(7); doc != "" {
		comps := d.Components(d.Repetitions(doc)[0])
		if len(comps) >= 2 {
			visit.AttendingDoctor.Family = d.Unescape(comps[1])
		}
		if len(comps) >= 3 && comps[2] != "" {
			visit.AttendingDoctor.Given = []string{d.Unescape(comps[2])}
		}
	}

	if t, ok := hl7.ParseDateTime(pv1.Field(44)); ok {
		visit.AdmitTime = &t
	}
	if t, ok := hl7.ParseDateTime(pv1.Field(45)); ok {
		visit.DischargeTime = &t
	}
	return visit
}

func extractInsurance(in1 *hl7.Segment, d hl7.Delimiters) *Insurance {
	return &Insurance{
		Plan:         d.ComponentAt(in1.Field(2), 1),
		Company:      d.Unescape(d.ComponentAt(in1.Field(4), 1)),
		GroupNumber:  in1.Field(8),
		PolicyNumber: in1.Field(36),
	}
}

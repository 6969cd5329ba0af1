package clinical

import (
	"fmt"
	"strings"

	"github.com/integrasaude/hl7-engine/internal/hl7"
)

// ExtractORM turns an order message into an Order. The message type must
// start with "ORM" and both ORC and OBR segments must be present.
func ExtractORM(msg *hl7.Message) (*Order, error) {
	if !strings.HasPrefix(msg.Type, "ORM") {
		return nil, fmt.Errorf("%w: got %q, want ORM*", hl7.ErrWrongMessageType, msg.Type)
	}
	orc := msg.Segment("ORC")
	if orc == nil {
		return nil, fmt.Errorf("%w: ORC", hl7.ErrMissingRequiredSegment)
	}
	obr := msg.Segment("OBR")
	if obr == nil {
		return nil, fmt.Errorf("%w: OBR", hl7.ErrMissingRequiredSegment)
	}
	d := msg.Delimiters

	order := &Order{
		ControlCode: OrderControl(orc.Field(1)),
		PlacerOrder: d.ComponentAt(orc.Field(2), 1),
		FillerOrder: d.ComponentAt(orc.Field(3), 1),
		Procedure:   codedField(obr.Field(4), d),
	}
	if order.PlacerOrder == "" {
		order.PlacerOrder = d.ComponentAt(obr.Field(2), 1)
	}
	if t, ok := hl7.ParseDateTime(d.ComponentAt(orc.Field(9), 1)); ok {
		order.RequestedAt = &t
	}

	if prov := orc.Field(12); prov != "" {
		comps := d.Components(d.Repetitions(prov)[0])
		if len(comps) >= 2 {
			order.OrderingProvider.Family = d.Unescape(comps[1])
		}
		if len(comps) >= 3 && comps[2] != "" {
			order.OrderingProvider.Given = []string{d.Unescape(comps[2])}
		}
	}

	if pid := msg.Segment("PID"); pid != nil {
		p := extractPatient(pid, d)
		order.Patient = &p
	}
	return order, nil
}

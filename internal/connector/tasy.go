package connector

import (
	"github.com/integrasaude/hl7-engine/internal/db"
	"github.com/integrasaude/hl7-engine/internal/hl7"
)

// tasyAdapter speaks the Philips Tasy dialect. Tasy expects a ZTY extension
// segment on outbound traffic and emits the same segment inbound.
//
// ZTY field positions (fixed, per the Tasy integration manual):
//
//	ZTY-1  origin system code
//	ZTY-2  patient record number (prontuário)
//	ZTY-3  sector code (setor)
//	ZTY-4  insurer code (convênio)
//	ZTY-5  external message reference
type tasyAdapter struct{}

func (tasyAdapter) Name() Vendor { return VendorTasy }

func (tasyAdapter) EnrichOutbound(msg *hl7.Message, env *db.Envelope) error {
	zty := &hl7.Segment{Name: "ZTY"}
	zty.SetField(1, env.Source)
	if pid := msg.Segment("PID"); pid != nil {
		zty.SetField(2, msg.Delimiters.ComponentAt(pid.Field(3), 1))
	}
	zty.SetField(5, env.ID)
	msg.Append(zty)
	return nil
}

func (tasyAdapter) ParseExtensions(msg *hl7.Message) map[string]string {
	zty := msg.Segment("ZTY")
	if zty == nil {
		return nil
	}
	return map[string]string{
		"origin_system": zty.Field(1),
		"record_number": zty.Field(2),
		"sector_code":   zty.Field(3),
		"insurer_code":  zty.Field(4),
		"external_ref":  zty.Field(5),
	}
}

// mvAdapter speaks the MV Soul dialect. MV sites exchange messages either
// over MLLP with a ZMV extension segment or over the XML HTTP channel.
//
// ZMV field positions:
//
//	ZMV-1  unit code (unidade)
//	ZMV-2  attendance number (atendimento)
//	ZMV-3  agreement code
type mvAdapter struct{}

func (mvAdapter) Name() Vendor { return VendorMV }

func (mvAdapter) EnrichOutbound(msg *hl7.Message, env *db.Envelope) error {
	zmv := &hl7.Segment{Name: "ZMV"}
	zmv.SetField(1, env.Source)
	if pv1 := msg.Segment("PV1"); pv1 != nil {
		zmv.SetField(2, msg.Delimiters.ComponentAt(pv1.Field(19), 1))
	}
	msg.Append(zmv)
	return nil
}

func (mvAdapter) ParseExtensions(msg *hl7.Message) map[string]string {
	zmv := msg.Segment("ZMV")
	if zmv == nil {
		return nil
	}
	return map[string]string{
		"unit_code":         zmv.Field(1),
		"attendance_number": zmv.Field(2),
		"agreement_code":    zmv.Field(3),
	}
}

// pixeonAdapter targets Pixeon's REST intake, which takes the HL7 text
// verbatim; no extension segments on either direction.
type pixeonAdapter struct{}

func (pixeonAdapter) Name() Vendor { return VendorPixeon }

func (pixeonAdapter) EnrichOutbound(*hl7.Message, *db.Envelope) error { return nil }

func (pixeonAdapter) ParseExtensions(*hl7.Message) map[string]string { return nil }

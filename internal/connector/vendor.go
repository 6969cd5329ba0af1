package connector

import (
	"github.com/integrasaude/hl7-engine/internal/db"
	"github.com/integrasaude/hl7-engine/internal/hl7"
)

// VendorAdapter hooks vendor-specific behavior into the send/receive path.
// Adapters see the already-built generic message and may append extension
// segments before send; inbound, they decode the same segments using fixed
// per-vendor field positions.
type VendorAdapter interface {
	Name() Vendor
	EnrichOutbound(msg *hl7.Message, env *db.Envelope) error
	ParseExtensions(msg *hl7.Message) map[string]string
}

// newVendorAdapter resolves the closed set of supported vendors. Unknown
// values fall back to the no-op adapter rather than failing construction.
func newVendorAdapter(v Vendor) VendorAdapter {
	switch v {
	case VendorTasy:
		return &tasyAdapter{}
	case VendorMV:
		return &mvAdapter{}
	case VendorPixeon:
		return &pixeonAdapter{}
	default:
		return noopAdapter{}
	}
}

type noopAdapter struct{}

func (noopAdapter) Name() Vendor { return VendorNone }

func (noopAdapter) EnrichOutbound(*hl7.Message, *db.Envelope) error { return nil }

func (noopAdapter) ParseExtensions(*hl7.Message) map[string]string { return nil }

package connector

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/integrasaude/hl7-engine/internal/hl7"
	"github.com/integrasaude/hl7-engine/internal/mllp"
)

// xmlChannel delivers messages to vendor XML intakes (MV Soul style) as
// text/xml over HTTP POST. Every value interpolated into the document goes
// through xml.EscapeText; markup is never built by bare concatenation.
type xmlChannel struct {
	endpoint string
	client   *http.Client
}

func newXMLChannel(cfg Config) *xmlChannel {
	return &xmlChannel{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.SendTimeout + cfg.AckTimeout},
	}
}

func (x *xmlChannel) Send(ctx context.Context, msg *hl7.Message) error {
	body := buildXMLEnvelope(msg.ControlID, msg.Type, string(msg.Encode()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", mllp.ErrConnectionFailed, x.endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: http %d", ErrVendorRejected, resp.StatusCode)
	default:
		return fmt.Errorf("%w: http %d", mllp.ErrConnectionFailed, resp.StatusCode)
	}
}

// buildXMLEnvelope renders the vendor document. Strings come from callers
// and from HL7 traffic, so each one is escaped individually.
func buildXMLEnvelope(id, msgType, content string) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<IntegracaoMensagem>")
	writeXMLElement(&b, "Identificador", id)
	writeXMLElement(&b, "Tipo", msgType)
	writeXMLElement(&b, "DataEnvio", time.Now().Format(time.RFC3339))
	writeXMLElement(&b, "Conteudo", content)
	b.WriteString("</IntegracaoMensagem>")
	return b.Bytes()
}

func writeXMLElement(b *bytes.Buffer, name, value string) {
	b.WriteString("<" + name + ">")
	xml.EscapeText(b, []byte(value))
	b.WriteString("</" + name + ">")
}

func (x *xmlChannel) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, x.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", mllp.ErrConnectionFailed, err)
	}
	resp.Body.Close()
	return nil
}

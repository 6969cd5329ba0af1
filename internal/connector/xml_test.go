package connector

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/integrasaude/hl7-engine/internal/mllp"
)

func TestBuildXMLEnvelopeEscapesValues(t *testing.T) {
	hostile := `<script>&"'|^~\&`
	doc := buildXMLEnvelope(`id<&>`, "ADT^A01", hostile)

	if bytes.Contains(doc, []byte("<script>")) {
		t.Fatal("markup leaked into the document unescaped")
	}

	var parsed struct {
		XMLName       xml.Name `xml:"IntegracaoMensagem"`
		Identificador string   `xml:"Identificador"`
		Tipo          string   `xml:"Tipo"`
		Conteudo      string   `xml:"Conteudo"`
	}
	if err := xml.Unmarshal(doc, &parsed); err != nil {
		t.Fatalf("document does not parse: %v\n%s", err, doc)
	}
	if parsed.Identificador != `id<&>` {
		t.Errorf("Identificador = %q", parsed.Identificador)
	}
	if parsed.Tipo != "ADT^A01" {
		t.Errorf("Tipo = %q", parsed.Tipo)
	}
	if parsed.Conteudo != hostile {
		t.Errorf("Conteudo = %q, want hostile content round-tripped", parsed.Conteudo)
	}
}

func TestXMLSend(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "text/xml; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		body = buf.Bytes()
	}))
	defer srv.Close()

	ch := newXMLChannel(Config{Endpoint: srv.URL, SendTimeout: time.Second, AckTimeout: time.Second})
	msg := testRESTMessage()
	if err := ch.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Contains(body, []byte(msg.ControlID)) {
		t.Error("control id missing from document")
	}
}

func TestXMLStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusOK, nil},
		{http.StatusUnprocessableEntity, ErrVendorRejected},
		{http.StatusServiceUnavailable, mllp.ErrConnectionFailed},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		ch := newXMLChannel(Config{Endpoint: srv.URL, SendTimeout: time.Second, AckTimeout: time.Second})
		if err := ch.Send(context.Background(), testRESTMessage()); !errors.Is(err, tt.want) {
			t.Errorf("http %d: err = %v, want %v", tt.status, err, tt.want)
		}
		srv.Close()
	}
}

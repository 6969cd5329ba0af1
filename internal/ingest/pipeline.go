// Package ingest consumes queued inbound messages, runs the semantic
// extractors and hands typed records to the platform's ingestion
// collaborator. Persistence of the records themselves lives outside this
// engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/integrasaude/hl7-engine/internal/clinical"
	"github.com/integrasaude/hl7-engine/internal/db"
	"github.com/integrasaude/hl7-engine/internal/hl7"
	"github.com/nats-io/nats.go/jetstream"
)

const maxDeliver = 5

// Ingestor receives the typed records extracted from inbound messages,
// keyed by the queued message id. Implementations are external systems.
type Ingestor interface {
	IngestAdmission(ctx context.Context, messageID string, event *clinical.AdmissionEvent) error
	IngestOrder(ctx context.Context, messageID string, order *clinical.Order) error
	IngestReport(ctx context.Context, messageID string, report *clinical.DiagnosticReport) error
}

// Pipeline pulls inbound records off JetStream and drives extraction.
// Transient ingest failures are redelivered; messages that cannot be
// parsed or extracted are terminated and parked in the DLQ bucket so they
// never loop. Every outcome lands in the history bucket for the API.
type Pipeline struct {
	js       jetstream.JetStream
	ingestor Ingestor

	history jetstream.KeyValue
	dlq     jetstream.KeyValue
	stats   jetstream.KeyValue
}

func NewPipeline(js jetstream.JetStream, ingestor Ingestor) *Pipeline {
	return &Pipeline{js: js, ingestor: ingestor}
}

func (p *Pipeline) Start(ctx context.Context) error {
	var err error
	if p.history, err = p.js.KeyValue(ctx, "HL7_HISTORY"); err != nil {
		return fmt.Errorf("open history bucket: %w", err)
	}
	if p.dlq, err = p.js.KeyValue(ctx, "HL7_DLQ"); err != nil {
		return fmt.Errorf("open DLQ bucket: %w", err)
	}
	if p.stats, err = p.js.KeyValue(ctx, "HL7_STATS"); err != nil {
		return fmt.Errorf("open stats bucket: %w", err)
	}

	consumer, err := p.js.CreateOrUpdateConsumer(ctx, "HL7_INBOUND", jetstream.ConsumerConfig{
		Name:          "inbound-ingest",
		Description:   "extracts typed records from inbound HL7 messages",
		MaxDeliver:    maxDeliver,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	go func() {
		slog.Info("ingest pipeline started", "stream", "HL7_INBOUND")

		cons, err := consumer.Consume(func(msg jetstream.Msg) {
			p.process(ctx, msg)
		})
		if err != nil {
			slog.Error("ingest consume failed", "error", err)
			return
		}

		<-ctx.Done()
		cons.Stop()
	}()
	return nil
}

func (p *Pipeline) process(ctx context.Context, msg jetstream.Msg) {
	var record db.MessageRecord
	if err := json.Unmarshal(msg.Data(), &record); err != nil {
		slog.Error("undecodable queue record dropped", "error", err)
		msg.Term()
		return
	}

	parsed, err := hl7.Parse(record.RawMessage)
	if err != nil {
		slog.Error("queued message failed to parse",
			"id", record.ID, "error", err)
		p.finish(ctx, &record, "failed", err)
		p.park(ctx, &record)
		msg.Term()
		return
	}

	err = p.dispatch(ctx, &record, parsed)
	switch {
	case err == nil:
		p.finish(ctx, &record, "ingested", nil)
		p.bumpStat(ctx, record.MessageType)
		msg.Ack()
	case errors.Is(err, hl7.ErrWrongMessageType),
		errors.Is(err, hl7.ErrMissingRequiredSegment),
		errors.Is(err, errUnsupportedCategory):
		// extraction errors are permanent, redelivery cannot fix them
		slog.Error("extraction failed",
			"id", record.ID,
			"messageType", record.MessageType,
			"error", err)
		p.finish(ctx, &record, "failed", err)
		p.park(ctx, &record)
		msg.Term()
	default:
		record.RetryCount = deliveryCount(msg)
		if record.RetryCount >= maxDeliver {
			// last delivery, the broker will not try again
			slog.Error("ingest retries exhausted", "id", record.ID, "error", err)
			p.finish(ctx, &record, "failed", err)
			p.park(ctx, &record)
			msg.Term()
			return
		}
		slog.Warn("ingest failed, will redeliver",
			"id", record.ID,
			"delivery", record.RetryCount,
			"error", err)
		msg.Nak()
	}
}

func deliveryCount(msg jetstream.Msg) int {
	meta, err := msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

// finish writes the record's terminal state to the history bucket.
func (p *Pipeline) finish(ctx context.Context, record *db.MessageRecord, status string, cause error) {
	now := time.Now()
	record.Status = status
	record.ProcessedAt = &now
	if cause != nil {
		record.LastError = cause.Error()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	if _, err := p.history.Put(ctx, record.ID, data); err != nil {
		slog.Warn("history write failed", "id", record.ID, "error", err)
	}
}

// park stores a permanently failed record in the DLQ bucket for operator
// inspection and replay.
func (p *Pipeline) park(ctx context.Context, record *db.MessageRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	if _, err := p.dlq.Put(ctx, record.ID, data); err != nil {
		slog.Warn("DLQ write failed", "id", record.ID, "error", err)
	}
}

// bumpStat increments the per-message-type ingest counter. The pipeline is
// the bucket's only writer, so get-increment-put needs no CAS loop.
func (p *Pipeline) bumpStat(ctx context.Context, messageType string) {
	if messageType == "" {
		messageType = "UNKNOWN"
	}
	key := "ingested." + sanitizeKey(messageType)

	count := uint64(0)
	if entry, err := p.stats.Get(ctx, key); err == nil {
		count, _ = strconv.ParseUint(string(entry.Value()), 10, 64)
	}
	if _, err := p.stats.Put(ctx, key, []byte(strconv.FormatUint(count+1, 10))); err != nil {
		slog.Warn("stats write failed", "key", key, "error", err)
	}
}

// sanitizeKey maps an HL7 message type to a KV-safe key segment
// ("ADT^A01" -> "ADT_A01").
func sanitizeKey(s string) string {
	out := []byte(s)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

var errUnsupportedCategory = errors.New("unsupported message category")

func (p *Pipeline) dispatch(ctx context.Context, record *db.MessageRecord, parsed *hl7.Message) error {
	switch parsed.Category() {
	case "ADT":
		event, err := clinical.ExtractADT(parsed)
		if err != nil {
			return err
		}
		if err := p.ingestor.IngestAdmission(ctx, record.ID, event); err != nil {
			return err
		}
		slog.Info("admission ingested",
			"id", record.ID,
			"trigger", event.Trigger,
			"patientID", event.Patient.ID)
		return nil
	case "ORM":
		order, err := clinical.ExtractORM(parsed)
		if err != nil {
			return err
		}
		if err := p.ingestor.IngestOrder(ctx, record.ID, order); err != nil {
			return err
		}
		slog.Info("order ingested",
			"id", record.ID,
			"controlCode", order.ControlCode.Code,
			"placerOrder", order.PlacerOrder)
		return nil
	case "ORU":
		report, err := clinical.ExtractORU(parsed)
		if err != nil {
			return err
		}
		if err := p.ingestor.IngestReport(ctx, record.ID, report); err != nil {
			return err
		}
		slog.Info("report ingested",
			"id", record.ID,
			"reportID", report.ID,
			"observations", len(report.Observations))
		return nil
	default:
		return fmt.Errorf("%w: %s", errUnsupportedCategory, parsed.Category())
	}
}

// LogIngestor is the default collaborator used until a platform sink is
// configured: it logs each record at debug level and accepts everything.
type LogIngestor struct{}

func (LogIngestor) IngestAdmission(_ context.Context, messageID string, event *clinical.AdmissionEvent) error {
	slog.Debug("admission record", "messageID", messageID, "trigger", event.Trigger)
	return nil
}

func (LogIngestor) IngestOrder(_ context.Context, messageID string, order *clinical.Order) error {
	slog.Debug("order record", "messageID", messageID, "controlCode", order.ControlCode.Code)
	return nil
}

func (LogIngestor) IngestReport(_ context.Context, messageID string, report *clinical.DiagnosticReport) error {
	slog.Debug("report record", "messageID", messageID, "reportID", report.ID)
	return nil
}

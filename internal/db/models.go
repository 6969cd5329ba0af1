package db

import (
	"time"
)

// MessageRecord is the queued form of one HL7 message moving through the
// engine, stored in the inbound JetStream stream and the history KV bucket.
type MessageRecord struct {
	ID               string     `json:"id"`
	Timestamp        time.Time  `json:"timestamp"`
	Direction        string     `json:"direction"` // "inbound" or "outbound"
	OrgID            string     `json:"org_id"`
	ConnectorID      string     `json:"connector_id"`
	SourceAddr       string     `json:"source_addr"`
	DestinationAddr  string     `json:"destination_addr"`
	MessageType      string     `json:"message_type"` // "ADT^A01"
	MessageControlID string     `json:"message_control_id"`
	PatientID        string     `json:"patient_id,omitempty"`
	RawMessage       []byte     `json:"raw_message"`
	Status           string     `json:"status"` // "pending", "ingested", "failed"
	RetryCount       int        `json:"retry_count"`
	LastError        string     `json:"last_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// Envelope is what external callers hand to a connector for an outbound
// send: routing metadata plus the HL7 body segments (everything after MSH).
type Envelope struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"` // "ORM^O01"
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Payload     string    `json:"payload"`
}

// SendResult reports the outcome of one outbound send.
type SendResult struct {
	CorrelationID string        `json:"correlation_id"`
	ControlID     string        `json:"control_id"`
	AckCode       string        `json:"ack_code,omitempty"`
	Attempts      int           `json:"attempts"`
	Latency       time.Duration `json:"latency"`
	Error         string        `json:"error,omitempty"`
}

// StreamInfo summarizes a JetStream stream for the web API.
type StreamInfo struct {
	Name          string `json:"name"`
	Messages      uint64 `json:"messages"`
	Bytes         uint64 `json:"bytes"`
	FirstSequence uint64 `json:"first_sequence"`
	LastSequence  uint64 `json:"last_sequence"`
}

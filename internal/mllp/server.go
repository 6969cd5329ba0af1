package mllp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/integrasaude/hl7-engine/internal/db"
	"github.com/integrasaude/hl7-engine/internal/hl7"
	"github.com/nats-io/nats.go/jetstream"
)

// Server accepts inbound MLLP connections from hospital systems, replies
// with ACK/NAK and queues each accepted message on JetStream for the
// ingestion pipeline.
type Server struct {
	port     int
	orgID    string
	framing  Framing
	js       jetstream.JetStream
	listener net.Listener
}

func NewServer(port int, orgID string, framing Framing, js jetstream.JetStream) *Server {
	if framing == (Framing{}) {
		framing = DefaultFraming()
	}
	return &Server{
		port:    port,
		orgID:   orgID,
		framing: framing,
		js:      js,
	}
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = listener

	slog.Info("MLLP listener started", "port", s.port, "org", s.orgID)

	go s.acceptConnections(ctx)
	return nil
}

func (s *Server) acceptConnections(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("accept failed", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	slog.Info("inbound HL7 connection", "remoteAddr", remoteAddr, "org", s.orgID)

	reader := NewFrameReader(conn, s.framing)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		payload, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Info("inbound connection closed", "remoteAddr", remoteAddr)
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			slog.Error("frame read failed", "error", err, "remoteAddr", remoteAddr)
			return
		}

		msg, err := hl7.Parse(payload)
		if err != nil {
			slog.Error("inbound message rejected", "error", err, "remoteAddr", remoteAddr)
			s.reply(conn, nakFor(err))
			continue
		}

		if err := s.enqueue(ctx, msg, payload, remoteAddr); err != nil {
			slog.Error("inbound message not queued", "error", err, "controlID", msg.ControlID)
			s.reply(conn, hl7.BuildACK(msg, hl7.AckError, err.Error()))
			continue
		}
		s.reply(conn, hl7.BuildACK(msg, hl7.AckAccept, ""))
	}
}

func (s *Server) reply(conn net.Conn, ack *hl7.Message) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(s.framing.Wrap(ack.Encode())); err != nil {
		slog.Error("ack write failed", "error", err)
	}
}

// nakFor builds a reject reply for text that did not parse. The original
// control id is unknown, so a minimal header is synthesized.
func nakFor(cause error) *hl7.Message {
	nak := hl7.NewMessage(hl7.HeaderInfo{
		SendingApp: "INTEGRA",
		Type:       "ACK",
	})
	msa := &hl7.Segment{Name: "MSA"}
	msa.SetField(1, hl7.AckReject)
	msa.SetField(3, cause.Error())
	nak.Append(msa)
	return nak
}

func (s *Server) enqueue(ctx context.Context, msg *hl7.Message, payload []byte, sourceAddr string) error {
	record := &db.MessageRecord{
		ID:               uuid.New().String(),
		Timestamp:        time.Now(),
		Direction:        "inbound",
		OrgID:            s.orgID,
		SourceAddr:       sourceAddr,
		MessageType:      msg.Type,
		MessageControlID: msg.ControlID,
		RawMessage:       payload,
		Status:           "pending",
		CreatedAt:        time.Now(),
	}
	if pid := msg.Segment("PID"); pid != nil {
		record.PatientID = msg.Delimiters.ComponentAt(pid.Field(3), 1)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	subject := fmt.Sprintf("hl7.inbound.%s.%s", s.orgID, record.ID)
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	slog.Info("inbound message queued",
		"id", record.ID,
		"messageType", record.MessageType,
		"controlID", record.MessageControlID,
		"patientID", record.PatientID,
		"source", sourceAddr)
	return nil
}

func (s *Server) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

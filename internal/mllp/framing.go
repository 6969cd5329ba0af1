// Package mllp implements the Minimal Lower Layer Protocol framing used to
// carry HL7 v2 messages over TCP, plus the pooled client transport and the
// inbound listener.
package mllp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Standard MLLP frame bytes.
const (
	StartBlock     = 0x0B // VT
	EndBlock       = 0x1C // FS
	CarriageReturn = 0x0D // CR
)

// Framing holds the frame bytes for one connector. Some legacy HIS
// deployments use nonstandard bytes, so they are configurable.
type Framing struct {
	Start byte
	End1  byte
	End2  byte
}

// DefaultFraming returns the standard VT / FS CR framing.
func DefaultFraming() Framing {
	return Framing{Start: StartBlock, End1: EndBlock, End2: CarriageReturn}
}

// Wrap frames a payload for the wire. Already-framed payloads are passed
// through unchanged.
func (f Framing) Wrap(payload []byte) []byte {
	if len(payload) > 0 && payload[0] == f.Start {
		return payload
	}
	out := make([]byte, 0, len(payload)+3)
	out = append(out, f.Start)
	out = append(out, payload...)
	return append(out, f.End1, f.End2)
}

// Unwrap strips the frame bytes when present.
func (f Framing) Unwrap(frame []byte) []byte {
	frame = bytes.TrimPrefix(frame, []byte{f.Start})
	return bytes.TrimSuffix(frame, []byte{f.End1, f.End2})
}

// maxFrameSize bounds a single HL7 message; encapsulated PDF reports can be
// large but anything beyond this is a framing error, not a message.
const maxFrameSize = 16 << 20

var errFrameTooLarge = errors.New("mllp: frame exceeds maximum size")

// FrameReader extracts MLLP frames from a byte stream. TCP gives no message
// boundaries: a frame may arrive across several reads and one read may carry
// several frames, so the reader keeps its own buffer between calls. A fixed
// single-read unwrap is not correct here.
type FrameReader struct {
	r       io.Reader
	framing Framing
	buf     []byte
	scratch [4096]byte
}

// NewFrameReader wraps a stream with frame extraction.
func NewFrameReader(r io.Reader, f Framing) *FrameReader {
	return &FrameReader{r: r, framing: f}
}

// ReadFrame returns the payload of the next complete frame, reading more
// bytes only when the buffered data does not already hold one. Bytes before
// a start block are line noise and are dropped.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		if payload, ok := fr.extract(); ok {
			return payload, nil
		}
		if len(fr.buf) > maxFrameSize {
			return nil, errFrameTooLarge
		}
		n, err := fr.r.Read(fr.scratch[:])
		if n > 0 {
			fr.buf = append(fr.buf, fr.scratch[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func (fr *FrameReader) extract() ([]byte, bool) {
	start := bytes.IndexByte(fr.buf, fr.framing.Start)
	if start < 0 {
		fr.buf = fr.buf[:0]
		return nil, false
	}
	if start > 0 {
		fr.buf = fr.buf[start:]
	}

	end := bytes.Index(fr.buf[1:], []byte{fr.framing.End1, fr.framing.End2})
	if end < 0 {
		return nil, false
	}
	end++ // account for the skipped start byte

	payload := make([]byte, end-1)
	copy(payload, fr.buf[1:end])
	fr.buf = fr.buf[end+2:]
	return payload, true
}

// Buffered reports how many bytes are waiting in the internal buffer.
// Useful in tests asserting multi-frame reads.
func (fr *FrameReader) Buffered() int {
	return len(fr.buf)
}

func (f Framing) String() string {
	return fmt.Sprintf("%02X/%02X%02X", f.Start, f.End1, f.End2)
}

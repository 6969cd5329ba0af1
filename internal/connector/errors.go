package connector

import (
	"errors"

	"github.com/integrasaude/hl7-engine/internal/mllp"
)

var (
	// ErrAckTimeout means the remote system never acknowledged a send
	// within the configured window. Retryable.
	ErrAckTimeout = errors.New("connector: acknowledgment timed out")
	// ErrProtocolViolation covers replies that break the HL7/MLLP contract,
	// e.g. an ACK correlated to a different control id. Never retried.
	ErrProtocolViolation = errors.New("connector: protocol violation")
	// ErrVendorRejected means the remote system returned an explicit
	// business rejection (AE/AR). Never retried.
	ErrVendorRejected = errors.New("connector: message rejected by remote system")
	// ErrAuthError covers REST credential and token failures.
	ErrAuthError = errors.New("connector: authentication failed")
	// ErrClosed is returned for operations on a closed connector.
	ErrClosed = errors.New("connector: closed")
)

// Retryable reports whether an error is transient enough to retry with
// backoff. Parsing, validation and protocol-structure errors are final.
func Retryable(err error) bool {
	return errors.Is(err, mllp.ErrConnectionFailed) ||
		errors.Is(err, mllp.ErrReadTimeout) ||
		errors.Is(err, mllp.ErrPoolExhausted) ||
		errors.Is(err, ErrAckTimeout)
}

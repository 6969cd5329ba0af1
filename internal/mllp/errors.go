package mllp

import "errors"

// Transport errors. ErrConnectionFailed, ErrReadTimeout and
// ErrPoolExhausted are retryable; the connector layer decides the retry
// policy.
var (
	ErrConnectionFailed = errors.New("mllp: connection failed")
	ErrReadTimeout      = errors.New("mllp: read timed out")
	ErrPoolExhausted    = errors.New("mllp: connection pool exhausted")
	ErrPoolClosed       = errors.New("mllp: connection pool closed")
)

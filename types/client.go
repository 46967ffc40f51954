package types

import (
	"time"
)

// HTTPCaller is the transport seam between provider adapters and the wire.
// Implementations own connection pooling and timeouts; adapters own rate
// limiting, breaker gating and response normalization.
type HTTPCaller interface {
	Call(method, path string, query map[string]string, opts *CallOptions) ([]byte, int, error)
	Close()
}

type CallOptions struct {
	Headers map[string]string
	Timeout time.Duration
}

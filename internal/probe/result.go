package probe

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies why a probe failed.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindTransport ErrorKind = "transport"
	KindHTTP      ErrorKind = "http"
)

// TransportError is a network-level failure reaching the target: refused
// connection, timeout, DNS or TLS failure, or a broken response body.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a response that arrived but was not healthy: a non-2xx status
// or a 2xx that took too long.
type HTTPError struct {
	StatusCode int
	Latency    time.Duration
	Slow       bool
}

func (e *HTTPError) Error() string {
	if e.Slow {
		return fmt.Sprintf("status %d took %s", e.StatusCode, e.Latency.Round(time.Millisecond))
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Outcome is the result of a single probe.
type Outcome struct {
	Endpoint   string
	Host       string
	Success    bool
	Latency    time.Duration
	StatusCode int // 0 when no response was received
	Err        error
	CheckedAt  time.Time
}

// LatencyMS returns the latency in fractional milliseconds.
func (o Outcome) LatencyMS() float64 {
	return float64(o.Latency) / float64(time.Millisecond)
}

// Kind returns the classification of o.Err.
func (o Outcome) Kind() ErrorKind {
	var te *TransportError
	var he *HTTPError
	switch {
	case o.Err == nil:
		return KindNone
	case errors.As(o.Err, &te):
		return KindTransport
	case errors.As(o.Err, &he):
		return KindHTTP
	default:
		return KindTransport
	}
}

// Status renders the outcome as "up" or "down".
func (o Outcome) Status() string {
	if o.Success {
		return "up"
	}
	return "down"
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"
)

// Request is one logical request produced for a virtual user.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// VU is the virtual user sending the request. Stateful transports use it to
	// keep one connection per user.
	VU int
}

// Response is what a Transport observed for a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
}

// Transport sends one request. Implementations must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// ErrorKind classifies per-request failures.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindProtocol          ErrorKind = "protocol"
)

// Error is returned by transports for any failed exchange.
type Error struct {
	Kind    ErrorKind
	Op      string
	Latency time.Duration
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap builds an *Error for err, keeping the kind of an already classified error.
func wrap(op string, latency time.Duration, err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: Classify(err), Op: op, Latency: latency, Err: err}
}

// Classify maps an arbitrary send error onto an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnectionRefused
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnectionRefused
	}
	return KindProtocol
}

// LatencyOf returns the time-to-failure carried by err, if any.
func LatencyOf(err error) (time.Duration, bool) {
	var te *Error
	if errors.As(err, &te) && te.Latency > 0 {
		return te.Latency, true
	}
	return 0, false
}

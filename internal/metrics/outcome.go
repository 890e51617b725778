package metrics

import (
	"time"

	"github.com/torosent/vuload/internal/check"
	"github.com/torosent/vuload/internal/transport"
)

// Outcome is what one virtual user observed for one request. It is never mutated
// after being recorded.
type Outcome struct {
	// Worker is the virtual user slot that produced the outcome.
	Worker int
	// StatusCode is zero when the transport failed.
	StatusCode int
	// Kind is empty when a response was received.
	Kind transport.ErrorKind
	// Latency is send-to-receipt, or time-to-failure when Kind is set.
	Latency time.Duration
	Checks  []check.Result
}

// Failed reports whether the request got no response.
func (o Outcome) Failed() bool {
	return o.Kind != ""
}

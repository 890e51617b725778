package transport

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/vuload/internal/tracing"
)

type tracedTransport struct {
	next      Transport
	tracer    trace.Tracer
	protocol  string
	propagate bool
}

// Traced wraps next so every Send runs inside a client span. When propagate is set the
// span context is injected into the outgoing request headers.
func Traced(next Transport, tracer trace.Tracer, protocol string, propagate bool) Transport {
	if tracer == nil {
		return next
	}
	return &tracedTransport{next: next, tracer: tracer, protocol: protocol, propagate: propagate}
}

func (t *tracedTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracing.StartRequestSpan(ctx, t.tracer, t.protocol, req.Method, req.URL)
	if t.propagate {
		if req.Header == nil {
			req.Header = http.Header{}
		}
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := t.next.Send(ctx, req)
	if err != nil {
		tracing.EndSpan(span, err, attribute.String("error.type", string(Classify(err))))
		return nil, err
	}
	tracing.EndSpan(span, nil, attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

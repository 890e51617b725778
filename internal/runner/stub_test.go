package runner

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/check"
	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/generator"
	"github.com/torosent/vuload/internal/transport"
)

// stubTransport answers every request with status after latency.
type stubTransport struct {
	status  int
	latency time.Duration
	err     error
	calls   atomic.Int64
}

func (s *stubTransport) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	s.calls.Add(1)
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &transport.Response{StatusCode: s.status, Header: http.Header{}, Latency: s.latency}, nil
}

// blockingTransport never answers until released, ignoring ctx.
type blockingTransport struct {
	release chan struct{}
	once    sync.Once
	calls   atomic.Int64
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{release: make(chan struct{})}
}

func (b *blockingTransport) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	b.calls.Add(1)
	<-b.release
	return &transport.Response{StatusCode: http.StatusCreated}, nil
}

func (b *blockingTransport) Release() {
	b.once.Do(func() { close(b.release) })
}

func staticGenerator() generator.Generator {
	return generator.NewTemplate(generator.Template{
		Method: http.MethodPost,
		URL:    "http://127.0.0.1:8000/orders",
		Body:   `{"quantity":10,"symbol":"EURUSD"}`,
	}, nil)
}

func createdCheck(t *testing.T) *check.Set {
	t.Helper()
	set, err := check.NewSet(check.Func("Order placed successfully", func(r *transport.Response) bool {
		return r.StatusCode == http.StatusCreated
	}))
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}
	return set
}

func loadConfig(vus int, duration time.Duration) config.Config {
	cfg := config.Defaults()
	cfg.VirtualUsers = vus
	cfg.Duration = duration
	cfg.Timeout = time.Second
	cfg.GracePeriod = time.Second
	return cfg
}

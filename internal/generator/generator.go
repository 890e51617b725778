// Package generator produces the request each virtual user sends next.
package generator

import (
	"crypto/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/vuload/internal/feeder"
	"github.com/torosent/vuload/internal/transport"
)

// Generator yields the next request to send. Next must be safe for concurrent
// use and never fails; generators backed by finite data cycle deterministically.
type Generator interface {
	Next(vu int) *transport.Request
}

// Template describes a request with {{field}} placeholders in the URL, header
// values and body.
type Template struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// TemplateGenerator renders a Template per iteration. Fields come from an optional
// feeder plus the built-ins vu, iteration and uuid.
type TemplateGenerator struct {
	tmpl      Template
	feeder    feeder.Feeder
	iteration atomic.Uint64
	static    bool

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewTemplate returns a generator for tmpl. f may be nil.
func NewTemplate(tmpl Template, f feeder.Feeder) *TemplateGenerator {
	if tmpl.Method == "" {
		tmpl.Method = http.MethodGet
	}
	g := &TemplateGenerator{
		tmpl:    tmpl,
		feeder:  f,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	g.static = f == nil && !hasPlaceholder(tmpl)
	return g
}

// Next renders the template for virtual user vu.
func (g *TemplateGenerator) Next(vu int) *transport.Request {
	iter := g.iteration.Add(1)
	if g.static {
		return g.build(vu, func(s string) string { return s })
	}

	var record feeder.Record
	if g.feeder != nil {
		record = g.feeder.Next()
	}
	lookup := func(field string) (string, bool) {
		switch field {
		case "vu":
			return strconv.Itoa(vu), true
		case "iteration":
			return strconv.FormatUint(iter, 10), true
		case "uuid":
			return g.newID(), true
		}
		return record.Lookup(field)
	}
	return g.build(vu, func(s string) string { return feeder.SubstitutePlaceholders(s, lookup) })
}

// Iterations returns how many requests have been generated.
func (g *TemplateGenerator) Iterations() uint64 {
	return g.iteration.Load()
}

func (g *TemplateGenerator) build(vu int, render func(string) string) *transport.Request {
	req := &transport.Request{
		VU:     vu,
		Method: g.tmpl.Method,
		URL:    render(g.tmpl.URL),
		Header: make(http.Header, len(g.tmpl.Headers)),
	}
	for k, v := range g.tmpl.Headers {
		req.Header.Set(k, render(v))
	}
	if g.tmpl.Body != "" {
		req.Body = []byte(render(g.tmpl.Body))
	}
	return req
}

func (g *TemplateGenerator) newID() string {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

func hasPlaceholder(t Template) bool {
	if containsPlaceholder(t.URL) || containsPlaceholder(t.Body) {
		return true
	}
	for _, v := range t.Headers {
		if containsPlaceholder(v) {
			return true
		}
	}
	return false
}

func containsPlaceholder(s string) bool {
	return strings.Contains(s, "{{")
}

// Func adapts a plain function to the Generator interface.
type Func func(vu int) *transport.Request

func (f Func) Next(vu int) *transport.Request {
	return f(vu)
}

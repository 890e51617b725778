package transport_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/transport"
)

func TestHTTPTransportSendsRequest(t *testing.T) {
	var gotMethod, gotBody, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Order", "1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order_id":1}`))
	}))
	defer server.Close()

	tr := transport.NewHTTPTransport(transport.HTTPOptions{Timeout: 5 * time.Second})
	resp, err := tr.Send(context.Background(), &transport.Request{
		Method: http.MethodPost,
		URL:    server.URL + "/orders",
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(`{"quantity":10,"symbol":"EURUSD"}`),
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody != `{"quantity":10,"symbol":"EURUSD"}` {
		t.Errorf("body = %q", gotBody)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != `{"order_id":1}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Header.Get("X-Order") != "1" {
		t.Errorf("expected response headers to be kept")
	}
	if resp.Latency <= 0 {
		t.Errorf("Latency = %s, want > 0", resp.Latency)
	}
}

func TestHTTPTransportTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	tr := transport.NewHTTPTransport(transport.HTTPOptions{Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := tr.Send(context.Background(), &transport.Request{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}

	var te *transport.Error
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *transport.Error", err)
	}
	if te.Kind != transport.KindTimeout {
		t.Errorf("Kind = %s, want %s", te.Kind, transport.KindTimeout)
	}
	if lat, ok := transport.LatencyOf(err); !ok || lat < 50*time.Millisecond {
		t.Errorf("time to failure = %s, want >= 50ms", lat)
	}
}

func TestHTTPTransportConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	tr := transport.NewHTTPTransport(transport.HTTPOptions{Timeout: time.Second})
	_, err = tr.Send(context.Background(), &transport.Request{Method: http.MethodGet, URL: "http://" + addr})
	if err == nil {
		t.Fatal("expected error for closed port")
	}
	if kind := transport.Classify(err); kind != transport.KindConnectionRefused {
		t.Errorf("Classify() = %s, want %s", kind, transport.KindConnectionRefused)
	}
}

func TestHTTPTransportCapsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	tr := transport.NewHTTPTransport(transport.HTTPOptions{Timeout: time.Second, MaxBodyBytes: 16})
	resp, err := tr.Send(context.Background(), &transport.Request{Method: http.MethodGet, URL: server.URL})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(resp.Body) != 16 {
		t.Errorf("len(Body) = %d, want 16", len(resp.Body))
	}
}

func TestHTTPTransportInvalidRequest(t *testing.T) {
	tr := transport.NewHTTPTransport(transport.HTTPOptions{})
	_, err := tr.Send(context.Background(), &transport.Request{Method: "BAD METHOD", URL: "http://example.com"})
	if transport.Classify(err) != transport.KindProtocol {
		t.Fatalf("Classify() = %q, want protocol", transport.Classify(err))
	}
}

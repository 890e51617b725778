package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultMaxBodyBytes caps how much of a response body is kept for checks.
const DefaultMaxBodyBytes = 1 << 20

// HTTPOptions configure an HTTPTransport.
type HTTPOptions struct {
	Timeout      time.Duration // per-request timeout, covers connect through body read
	MaxBodyBytes int64         // bytes retained from each body; the rest is drained (0 uses DefaultMaxBodyBytes)
	Client       *http.Client  // optional; overrides the pooled client built from Timeout
}

// HTTPTransport sends requests with a shared, connection-pooling http.Client.
type HTTPTransport struct {
	client       *http.Client
	maxBodyBytes int64
}

func NewHTTPTransport(opts HTTPOptions) *HTTPTransport {
	client := opts.Client
	if client == nil {
		client = NewClient(opts.Timeout)
	}
	limit := opts.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return &HTTPTransport{client: client, maxBodyBytes: limit}
}

func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, &Error{Kind: KindProtocol, Op: "build", Err: errors.New("request cannot be nil")}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Op: "build", Err: err}
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, wrap("send", time.Since(start), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes))
	if err == nil {
		_, err = io.Copy(io.Discard, resp.Body)
	}
	latency := time.Since(start)
	if err != nil {
		return nil, wrap("read", latency, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Latency:    latency,
	}, nil
}

// NewClient returns an http.Client tuned for many concurrent virtual users.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          1024,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/vuload/internal/pool"
)

// WebSocketOptions configure a WebSocketTransport.
type WebSocketOptions struct {
	Timeout        time.Duration // bounds dial, write and the wait for the reply
	MaxMessageSize int64
	PoolSize       int // idle connections kept per target; usually the virtual-user count
}

// WebSocketTransport treats one request as one text frame out and one frame back.
// Connections are parked in a pool between iterations, so a closed-loop virtual user
// keeps reusing the same socket.
type WebSocketTransport struct {
	dialer  *websocket.Dialer
	timeout time.Duration
	maxSize int64
	conns   *pool.Pool
}

type wsConn struct {
	conn   *websocket.Conn
	header http.Header
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

func NewWebSocketTransport(opts WebSocketOptions) *WebSocketTransport {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxBodyBytes
	}
	return &WebSocketTransport{
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.Timeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		timeout: opts.Timeout,
		maxSize: opts.MaxMessageSize,
		conns:   pool.New(opts.PoolSize),
	}
}

func (t *WebSocketTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, &Error{Kind: KindProtocol, Op: "build", Err: errors.New("request cannot be nil")}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	deadline := start.Add(t.timeout)
	key := pool.Key(req.URL, req.VU)

	var c *wsConn
	if pooled, ok := t.conns.Get(key); ok {
		c = pooled.(*wsConn)
	} else {
		dialCtx, cancel := context.WithDeadline(ctx, deadline)
		conn, resp, err := t.dialer.DialContext(dialCtx, req.URL, req.Header)
		cancel()
		if err != nil {
			if resp != nil {
				err = fmt.Errorf("handshake status %d: %w", resp.StatusCode, err)
			}
			return nil, wrap("dial", time.Since(start), err)
		}
		conn.SetReadLimit(t.maxSize)
		var header http.Header
		if resp != nil {
			header = resp.Header
		}
		c = &wsConn{conn: conn, header: header}
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		_ = c.conn.Close()
		return nil, wrap("write", time.Since(start), err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, req.Body); err != nil {
		_ = c.conn.Close()
		return nil, wrap("write", time.Since(start), err)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		_ = c.conn.Close()
		return nil, wrap("read", time.Since(start), err)
	}
	_, data, err := c.conn.ReadMessage()
	latency := time.Since(start)
	if err != nil {
		_ = c.conn.Close()
		return nil, wrap("read", latency, err)
	}

	_ = t.conns.Put(key, c)

	return &Response{
		StatusCode: http.StatusSwitchingProtocols,
		Header:     c.header,
		Body:       data,
		Latency:    latency,
	}, nil
}

// Close closes every parked connection.
func (t *WebSocketTransport) Close() error {
	return t.conns.Close()
}

// Package pool keeps idle long-lived connections so virtual users can reuse them across iterations.
package pool

import (
	"errors"
	"strconv"
	"sync"
)

// Conn is anything the pool can hold and eventually close.
type Conn interface {
	Close() error
}

// ErrClosed is returned by Put after Close has been called.
var ErrClosed = errors.New("pool closed")

// Pool holds up to size idle connections per key. Keys group connections that are
// interchangeable, typically a target URL plus the virtual user that dialed it.
type Pool struct {
	mu     sync.Mutex
	idle   map[string][]Conn
	size   int
	closed bool
}

// New creates a pool with the given per-key capacity.
func New(size int) *Pool {
	if size <= 0 {
		size = 10
	}
	return &Pool{
		idle: make(map[string][]Conn),
		size: size,
	}
}

// Get pops an idle connection for key. ok is false when the caller must dial a new one.
func (p *Pool) Get(key string) (conn Conn, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := p.idle[key]
	if p.closed || len(conns) == 0 {
		return nil, false
	}
	conn = conns[len(conns)-1]
	p.idle[key] = conns[:len(conns)-1]
	return conn, true
}

// Put returns conn to the pool. When the pool is full or closed the connection is closed instead.
func (p *Pool) Put(key string, conn Conn) error {
	if conn == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	if len(p.idle[key]) >= p.size {
		p.mu.Unlock()
		return conn.Close()
	}
	p.idle[key] = append(p.idle[key], conn)
	p.mu.Unlock()
	return nil
}

// Idle reports how many connections are parked for key.
func (p *Pool) Idle(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[key])
}

// Close closes every idle connection. Later Puts close their connection immediately.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[string][]Conn)
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for _, conns := range idle {
		for _, c := range conns {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Key identifies the connection owned by one virtual user on one target. Handshake
// headers are left out: they may change every iteration and the socket outlives them.
func Key(target string, owner int) string {
	return target + "#" + strconv.Itoa(owner)
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), KindTimeout},
		{"os deadline", os.ErrDeadlineExceeded, KindTimeout},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, KindConnectionRefused},
		{"dial failure", &net.OpError{Op: "dial", Err: errors.New("no route")}, KindConnectionRefused},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid"}, KindConnectionRefused},
		{"reset", &net.OpError{Op: "read", Err: errors.New("connection reset by peer")}, KindProtocol},
		{"other", errors.New("malformed HTTP response"), KindProtocol},
		{"already classified", &Error{Kind: KindTimeout, Err: errors.New("x")}, KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapKeepsExistingError(t *testing.T) {
	orig := &Error{Kind: KindConnectionRefused, Op: "dial", Err: errors.New("refused")}
	got := wrap("send", 0, fmt.Errorf("outer: %w", orig))
	if got != orig {
		t.Fatalf("wrap() should return the already classified error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := wrap("send", 0, context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("errors.Is should see through *Error")
	}
	if err.Error() != "send timeout: context deadline exceeded" {
		t.Errorf("Error() = %q", err.Error())
	}
}

package testutil

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrMockSendFailed is returned by MockConn.Send after FailSends is called.
var ErrMockSendFailed = errors.New("mock: send failed")

// MockConn is an in-memory message connection. Tests push inbound frames
// with Deliver and inspect outbound frames with Sent.
type MockConn struct {
	inbound chan string
	closed  chan struct{}

	mu        sync.Mutex
	sent      []string
	failSends bool
	closeOnce sync.Once
	closes    int
}

// NewMockConn creates an open MockConn.
func NewMockConn() *MockConn {
	return &MockConn{
		inbound: make(chan string, 64),
		closed:  make(chan struct{}),
	}
}

// Send records msg unless the connection is closed or set to fail.
func (c *MockConn) Send(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	if c.failSends {
		return ErrMockSendFailed
	}
	c.sent = append(c.sent, msg)
	return nil
}

// Receive returns the next delivered frame, io.EOF once the connection is
// closed, or ctx.Err().
func (c *MockConn) Receive(ctx context.Context) (string, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close closes the connection. Subsequent calls are no-ops.
func (c *MockConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Deliver queues an inbound frame as if the remote peer had sent it.
func (c *MockConn) Deliver(msg string) {
	c.inbound <- msg
}

// FailSends makes every later Send return ErrMockSendFailed.
func (c *MockConn) FailSends() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSends = true
}

// Sent returns a copy of the frames sent so far.
func (c *MockConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// Closed reports whether Close has been called.
func (c *MockConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// CloseCalls returns how many times Close was called.
func (c *MockConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

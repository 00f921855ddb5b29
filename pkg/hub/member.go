package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// State is the lifecycle position of a connection.
type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type member struct {
	id    string
	conn  Conn
	state atomic.Int32

	// sendMu keeps deliveries to this member in broadcast order
	sendMu  sync.Mutex
	limiter *rate.Limiter

	removeOnce sync.Once
}

func newMember(conn Conn, limit rate.Limit, burst int) *member {
	m := &member{
		id:   uuid.NewString(),
		conn: conn,
	}
	if limit > 0 {
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(limit, burst)
	}
	return m
}

func (m *member) State() State {
	return State(m.state.Load())
}

func (m *member) send(ctx context.Context, msg string) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if m.State() != Open {
		return fmt.Errorf("member %s is %s", m.id, m.State())
	}
	return m.conn.Send(ctx, msg)
}

// throttle waits until the member may submit another message.
func (m *member) throttle(ctx context.Context, onThrottle func(id string)) error {
	if m.limiter == nil || m.limiter.Allow() {
		return nil
	}
	onThrottle(m.id)
	return m.limiter.Wait(ctx)
}

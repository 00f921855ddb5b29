package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vnykmshr/flowcore/internal/logger"
	gferrors "github.com/vnykmshr/flowcore/pkg/common/errors"
	"github.com/vnykmshr/flowcore/pkg/metrics"
)

// ErrHubClosed is returned by Serve once the hub has been closed.
var ErrHubClosed = fmt.Errorf("hub: %w", gferrors.ErrClosed)

// Conn is a reliable, ordered, message-oriented connection.
type Conn interface {
	// Send delivers one text message.
	Send(ctx context.Context, msg string) error

	// Receive returns the next inbound message. It returns io.EOF when the
	// remote side closes the connection.
	Receive(ctx context.Context) (string, error)

	// Close closes the connection. It must be safe to call more than once.
	Close() error
}

// Policy decides whether a message is echoed back to its sender.
type Policy int

const (
	// IncludeSender delivers every message to all open members.
	IncludeSender Policy = iota

	// ExcludeSender delivers every message to all open members but its sender.
	ExcludeSender
)

// String returns the string representation of the policy.
func (p Policy) String() string {
	if p == ExcludeSender {
		return "exclude-sender"
	}
	return "include-sender"
}

// Hub keeps the set of open connections and fans every inbound message out
// to them. Membership is only changed through the hub, and fan-out works on
// a snapshot, so joins and departures never race with delivery.
type Hub struct {
	name        string
	instance    string
	policy      Policy
	sendTimeout time.Duration
	limit       rate.Limit
	burst       int
	backplane   Backplane
	logger      *slog.Logger
	metrics     *metrics.Registry

	mu      sync.RWMutex
	members map[string]*member
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	bpDone chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithName sets the hub name used in logs and metric labels.
func WithName(name string) Option {
	return func(h *Hub) {
		h.name = name
	}
}

// WithPolicy sets the sender policy. The default is IncludeSender.
func WithPolicy(p Policy) Option {
	return func(h *Hub) {
		h.policy = p
	}
}

// WithSendTimeout bounds each delivery to a single member. A member whose
// send times out is disconnected.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.sendTimeout = d
	}
}

// WithRateLimit throttles how fast each member may submit messages. A
// member over its limit waits before its next message is fanned out.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(h *Hub) {
		h.limit = limit
		h.burst = burst
	}
}

// WithBackplane relays messages through bp so that members connected to
// other hub instances receive them too.
func WithBackplane(bp Backplane) Option {
	return func(h *Hub) {
		h.backplane = bp
	}
}

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics records membership and delivery metrics in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(h *Hub) {
		h.metrics = reg
	}
}

// New creates a hub. With a backplane configured, the hub subscribes to it
// until Close.
func New(opts ...Option) *Hub {
	h := &Hub{
		name:     "hub",
		instance: uuid.NewString(),
		members:  make(map[string]*member),
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("hub"), slog.String("hub", h.name))
	h.ctx, h.cancel = context.WithCancel(context.Background())

	if h.backplane != nil {
		h.bpDone = make(chan struct{})
		go h.relay()
	}
	return h
}

// Serve registers conn as a member and runs its receive loop until the
// remote side closes, a receive fails, the member is disconnected, ctx ends
// or the hub is closed. Every message received is broadcast. The member is
// removed and conn closed exactly once when Serve returns.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	m := newMember(conn, h.limit, h.burst)
	if !h.add(m) {
		_ = conn.Close()
		return ErrHubClosed
	}
	defer h.remove(m, "receive loop ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			switch {
			case m.State() >= Closing, errors.Is(err, io.EOF), errors.Is(err, gferrors.ErrClosed):
				return nil
			case ctx.Err() != nil:
				if h.ctx.Err() != nil {
					return nil
				}
				return ctx.Err()
			default:
				h.logger.Debug("receive failed", logger.ID("member", m.id), logger.Error(err))
				return err
			}
		}

		if h.metrics != nil {
			h.metrics.HubReceived.WithLabelValues(h.name).Inc()
		}
		if err := m.throttle(ctx, h.onThrottle); err != nil {
			return nil
		}

		h.Broadcast(ctx, m.id, msg)
		h.publish(ctx, m.id, msg)
	}
}

// Broadcast delivers msg to every open member, honoring the sender policy
// for from (pass "" for messages without a local sender). Deliveries run
// concurrently; a member whose send fails is removed and the failure goes
// no further. Broadcast returns the number of successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, from, msg string) int {
	recipients := h.snapshot(from)
	if len(recipients) == 0 {
		return 0
	}

	var (
		delivered atomic.Int32
		g         errgroup.Group
	)
	for _, m := range recipients {
		g.Go(func() error {
			if err := h.deliver(ctx, m, msg); err != nil {
				// The caller gave up; the recipient did nothing wrong
				if ctx.Err() != nil {
					return nil
				}
				h.count("failed")
				h.remove(m, "send failed: "+err.Error())
				return nil
			}
			delivered.Add(1)
			h.count("delivered")
			return nil
		})
	}
	_ = g.Wait()

	n := int(delivered.Load())
	h.logger.Debug("broadcast", logger.ID("from", from), slog.Int("recipients", len(recipients)), slog.Int("delivered", n))
	return n
}

// Disconnect forcibly removes a member and closes its connection. It
// reports false if id is not a current member.
func (h *Hub) Disconnect(id string) bool {
	h.mu.RLock()
	m, ok := h.members[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.remove(m, "disconnected")
	return true
}

// Member describes one connection known to the hub.
type Member struct {
	ID    string
	Conn  Conn
	State State
}

// Members returns a snapshot of the current members.
func (h *Hub) Members() []Member {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Member, 0, len(h.members))
	for _, m := range h.members {
		out = append(out, Member{ID: m.id, Conn: m.conn, State: m.State()})
	}
	return out
}

// Len returns the number of current members.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// State returns the state of the member with the given id. Unknown ids
// report Closed.
func (h *Hub) State(id string) State {
	h.mu.RLock()
	m, ok := h.members[id]
	h.mu.RUnlock()
	if !ok {
		return Closed
	}
	return m.State()
}

// Policy returns the configured sender policy.
func (h *Hub) Policy() Policy {
	return h.policy
}

// Close disconnects every member, stops the backplane relay and rejects
// further connections. It is safe to call more than once.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	members := make([]*member, 0, len(h.members))
	for _, m := range h.members {
		members = append(members, m)
	}
	h.mu.Unlock()

	h.cancel()
	for _, m := range members {
		h.remove(m, "hub closed")
	}
	if h.bpDone != nil {
		<-h.bpDone
	}
	h.logger.Info("hub closed", slog.Int("disconnected", len(members)))
	return nil
}

func (h *Hub) add(m *member) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.members[m.id] = m
	m.state.Store(int32(Open))
	n := len(h.members)
	h.mu.Unlock()

	h.logger.Info("member joined", logger.ID("member", m.id), slog.Int("members", n))
	h.gauge(n)
	return true
}

// remove takes m out of the membership and closes its connection. Only the
// first call for a member has any effect.
func (h *Hub) remove(m *member, reason string) {
	m.removeOnce.Do(func() {
		m.state.Store(int32(Closing))

		h.mu.Lock()
		if cur, ok := h.members[m.id]; ok && cur == m {
			delete(h.members, m.id)
		}
		n := len(h.members)
		h.mu.Unlock()

		if err := m.conn.Close(); err != nil {
			h.logger.Debug("close failed", logger.ID("member", m.id), logger.Error(err))
		}
		m.state.Store(int32(Closed))

		h.logger.Info("member left", logger.ID("member", m.id), slog.String("reason", reason), slog.Int("members", n))
		h.gauge(n)
	})
}

// snapshot returns the open members a message from sender should reach.
func (h *Hub) snapshot(from string) []*member {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*member, 0, len(h.members))
	for id, m := range h.members {
		if h.policy == ExcludeSender && id == from {
			continue
		}
		if m.State() != Open {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (h *Hub) deliver(ctx context.Context, m *member, msg string) error {
	if h.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sendTimeout)
		defer cancel()
	}
	return m.send(ctx, msg)
}

func (h *Hub) onThrottle(id string) {
	h.logger.Debug("member throttled", logger.ID("member", id))
	if h.metrics != nil {
		h.metrics.HubRateLimited.WithLabelValues(h.name).Inc()
	}
}

func (h *Hub) count(status string) {
	if h.metrics != nil {
		h.metrics.HubDeliveries.WithLabelValues(h.name, status).Inc()
	}
}

func (h *Hub) gauge(n int) {
	if h.metrics != nil {
		h.metrics.HubMembers.WithLabelValues(h.name).Set(float64(n))
	}
}

package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/flowcore/internal/logger"
)

// Envelope is a message relayed between hub instances.
type Envelope struct {
	Instance string    `json:"instance"`
	From     string    `json:"from"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// Backplane carries messages between hub instances.
type Backplane interface {
	// Publish sends env to every subscribed instance, including this one.
	Publish(ctx context.Context, env Envelope) error

	// Subscribe calls handle for every envelope until ctx ends.
	Subscribe(ctx context.Context, handle func(Envelope)) error
}

// RedisBackplane is a Backplane over Redis pub/sub.
type RedisBackplane struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewRedisBackplane creates a backplane publishing to channel. The caller
// owns client.
func NewRedisBackplane(client redis.UniversalClient, channel string, log *slog.Logger) *RedisBackplane {
	if log == nil {
		log = logger.Discard()
	}
	return &RedisBackplane{
		client:  client,
		channel: channel,
		logger:  log.With(logger.Component("backplane"), slog.String("channel", channel)),
	}
}

// Publish implements Backplane.
func (b *RedisBackplane) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe implements Backplane.
func (b *RedisBackplane) Subscribe(ctx context.Context, handle func(Envelope)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("dropping malformed envelope", logger.Error(err))
				continue
			}
			handle(env)
		}
	}
}

// publish relays a locally received message to other instances.
func (h *Hub) publish(ctx context.Context, from, msg string) {
	if h.backplane == nil {
		return
	}
	env := Envelope{
		Instance: h.instance,
		From:     from,
		Body:     msg,
		SentAt:   time.Now(),
	}
	if err := h.backplane.Publish(ctx, env); err != nil {
		h.logger.Warn("backplane publish failed", logger.Error(err))
	}
}

// relay delivers messages from other instances to local members.
func (h *Hub) relay() {
	defer close(h.bpDone)

	err := h.backplane.Subscribe(h.ctx, func(env Envelope) {
		if env.Instance == h.instance {
			return
		}
		h.Broadcast(h.ctx, "", env.Body)
	})
	if err != nil && h.ctx.Err() == nil {
		h.logger.Error("backplane subscription ended", logger.Error(err))
	}
}

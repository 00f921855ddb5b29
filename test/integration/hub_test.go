package integration

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/flowcore/internal/testutil"
	"github.com/vnykmshr/flowcore/pkg/hub"
	"github.com/vnykmshr/flowcore/pkg/scheduler"
	"github.com/vnykmshr/flowcore/pkg/shutdown"
)

// TestBroadcastServerLifecycle runs a hub behind a websocket endpoint,
// fans a message out to three clients, force-disconnects one, and then
// shuts the whole thing down through a coordinator.
func TestBroadcastServerLifecycle(t *testing.T) {
	c := shutdown.New()
	room := hub.New(hub.WithPolicy(hub.ExcludeSender))
	srv := httptest.NewServer(hub.Handler(room))
	c.RegisterFunc("http", func(context.Context) error {
		srv.Close()
		return nil
	})
	c.Register("hub", room)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clients := make([]hub.Conn, 3)
	for i := range clients {
		conn, err := hub.Dial(ctx, url)
		require.NoError(t, err)
		clients[i] = conn
	}
	require.Eventually(t, func() bool { return room.Len() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, clients[0].Send(ctx, "hello"))
	for _, conn := range clients[1:] {
		msg, err := conn.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hello", msg)
	}

	members := room.Members()
	require.Len(t, members, 3)
	require.True(t, room.Disconnect(members[0].ID))
	assert.Equal(t, 2, room.Len())

	assert.Equal(t, 2, room.Broadcast(ctx, "", "after disconnect"))

	c.Trigger("test")
	report, err := c.Wait(ctx)
	require.NoError(t, err)
	assert.NoError(t, report.Err())
	assert.Equal(t, 0, room.Len())

	// Every client eventually sees the connection close
	for _, conn := range clients {
		for {
			_, err := conn.Receive(ctx)
			if err != nil {
				assert.NotErrorIs(t, err, context.DeadlineExceeded)
				break
			}
		}
		_ = conn.Close()
	}
}

// TestHeartbeatJobBroadcasts wires a scheduler into the root scope and
// checks its job reaches hub members until shutdown.
func TestHeartbeatJobBroadcasts(t *testing.T) {
	c := shutdown.New()
	room := hub.New()
	c.Register("hub", room)

	conn := testutil.NewMockConn()
	served := make(chan error, 1)
	go func() { served <- room.Serve(context.Background(), conn) }()
	require.Eventually(t, func() bool { return room.Len() == 1 }, time.Second, time.Millisecond)

	sched, err := scheduler.New(scheduler.Config{Scope: c.Scope(), TickInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, sched.ScheduleRepeating("heartbeat", 10*time.Millisecond, func(ctx context.Context) error {
		room.Broadcast(ctx, "", "heartbeat")
		return nil
	}))
	require.NoError(t, sched.Start())

	require.Eventually(t, func() bool { return len(conn.Sent()) >= 2 }, 2*time.Second, time.Millisecond)

	c.Trigger("test")
	report, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Failed())
	assert.NoError(t, <-served)
	assert.True(t, conn.Closed())

	for _, msg := range conn.Sent() {
		assert.Equal(t, "heartbeat", msg)
	}
	_, err = conn.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

package hub

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	h := New(WithName("ws"))
	srv := httptest.NewServer(Handler(h, WithAllowAnyOrigin()))
	defer srv.Close()
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := Dial(ctx, wsURL(srv))
	require.NoError(t, err)
	bob, err := Dial(ctx, wsURL(srv))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Len() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, alice.Send(ctx, "hello"))

	for _, c := range []Conn{alice, bob} {
		msg, err := c.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hello", msg)
	}

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Close())
	_, err = bob.Receive(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_ = bob.Close()
}

func TestWebSocketReceiveHonorsContext(t *testing.T) {
	h := New()
	srv := httptest.NewServer(Handler(h))
	defer srv.Close()
	defer h.Close()

	c, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = c.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialFailure(t *testing.T) {
	h := New()
	srv := httptest.NewServer(Handler(h))
	url := wsURL(srv)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, url)
	assert.Error(t, err)
}

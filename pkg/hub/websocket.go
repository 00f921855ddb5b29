package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vnykmshr/flowcore/internal/logger"
)

const closeGracePeriod = time.Second

// wsConn adapts a gorilla websocket connection to Conn.
type wsConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps an established websocket connection.
func NewWebSocketConn(c *websocket.Conn) Conn {
	return &wsConn{conn: c}
}

// Send writes msg as a text frame. A context deadline becomes the write
// deadline.
func (c *wsConn) Send(ctx context.Context, msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Receive reads the next data frame. A normal close from the peer is
// reported as io.EOF; ctx ending interrupts the read.
func (c *wsConn) Receive(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return "", io.EOF
		}
		return "", err
	}
	return string(data), nil
}

// Close sends a close frame and closes the underlying connection.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// HandlerOption configures Handler.
type HandlerOption func(*websocket.Upgrader)

// WithOriginCheck sets the origin policy for upgrades.
func WithOriginCheck(fn func(r *http.Request) bool) HandlerOption {
	return func(u *websocket.Upgrader) {
		u.CheckOrigin = fn
	}
}

// WithAllowAnyOrigin accepts upgrades from every origin.
func WithAllowAnyOrigin() HandlerOption {
	return WithOriginCheck(func(r *http.Request) bool { return true })
}

// Handler upgrades HTTP requests to websocket connections served by h.
func Handler(h *Hub, opts ...HandlerOption) http.Handler {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	for _, opt := range opts {
		opt(upgrader)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error
			h.logger.Debug("upgrade failed", logger.Error(err))
			return
		}

		h.logger.Debug("connection upgraded", slog.String("remote", r.RemoteAddr))
		if err := h.Serve(r.Context(), NewWebSocketConn(c)); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Warn("connection ended with error", slog.String("remote", r.RemoteAddr), logger.Error(err))
		}
	})
}

// Dial connects to a hub websocket endpoint such as ws://localhost:8765/ws.
func Dial(ctx context.Context, url string) (Conn, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketConn(c), nil
}

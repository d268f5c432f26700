package verify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// WSChannel adapts a gorilla WebSocket connection to Channel. Binary
// frames carry audio chunks; text frames from the client are ignored.
// Decisions are written as JSON text frames.
type WSChannel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Channel = (*WSChannel)(nil)

// NewWSChannel wraps conn. maxChunk limits the size of one frame; zero
// keeps the gorilla default (unlimited). Exceeding the limit fails the
// read and closes the connection, so Receive returns an error and the
// session ends.
func NewWSChannel(conn *websocket.Conn, maxChunk int64, logger *slog.Logger) *WSChannel {
	if logger == nil {
		logger = slog.Default()
	}
	if maxChunk > 0 {
		conn.SetReadLimit(maxChunk)
	}
	return &WSChannel{conn: conn, logger: logger}
}

// Receive implements [Channel].
func (c *WSChannel) Receive(ctx context.Context) ([]byte, error) {
	// Unblock ReadMessage on cancellation.
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return nil, ErrClosed
			}
			return nil, err
		}
		switch mt {
		case websocket.BinaryMessage:
			return data, nil
		default:
			c.logger.Debug("ignoring non-binary frame", "type", mt, "bytes", len(data))
		}
	}
}

// Send implements [Channel].
func (c *WSChannel) Send(ctx context.Context, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Close sends a close frame and closes the connection.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug("close frame not sent", "error", err)
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

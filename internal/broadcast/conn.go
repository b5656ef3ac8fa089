package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sheetpulse/internal/domain"
	"golang.org/x/sync/semaphore"
)

const (
	writeDeadline   = 5 * time.Second
	closeDeadline   = time.Second
	maxMessageBytes = 64 * 1024
	// RFC 6455 caps the close reason at 123 bytes.
	maxCloseReason = 123
)

// Channel is the duplex transport behind a session.
type Channel interface {
	// WriteText sends one text frame. The write is abandoned when ctx ends.
	WriteText(ctx context.Context, data []byte) error
	// Close sends a close frame with code and reason, then releases the transport.
	// Calls after the first are no-ops.
	Close(code int, reason string) error
}

// WSChannel adapts a gorilla connection to Channel.
type WSChannel struct {
	conn      *websocket.Conn
	clock     clockwork.Clock
	writeSem  *semaphore.Weighted
	closeOnce sync.Once
	closed    chan struct{}
}

func NewWSChannel(conn *websocket.Conn, clock clockwork.Clock) *WSChannel {
	conn.SetReadLimit(maxMessageBytes)
	return &WSChannel{
		conn:     conn,
		clock:    clock,
		writeSem: semaphore.NewWeighted(1),
		closed:   make(chan struct{}),
	}
}

func (c *WSChannel) WriteText(ctx context.Context, data []byte) error {
	if err := c.writeSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for writer: %w", err)
	}
	defer c.writeSem.Release(1)

	select {
	case <-c.closed:
		return domain.ErrSessionClosed
	default:
	}

	deadline := c.clock.Now().Add(writeDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write text frame: %w", err)
	}
	return nil
}

// ReadText blocks for the next text frame. Binary frames are skipped.
func (c *WSChannel) ReadText() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (c *WSChannel) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(code, truncateReason(reason))
		// WriteControl is safe to call concurrently with WriteMessage.
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, c.clock.Now().Add(closeDeadline))
		err = c.conn.Close()
	})
	return err
}

// truncateReason cuts reason to fit a close frame without splitting a rune.
func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	i := maxCloseReason
	for i > 0 && !utf8.RuneStart(reason[i]) {
		i--
	}
	return reason[:i]
}

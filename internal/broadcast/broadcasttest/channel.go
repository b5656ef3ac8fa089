// Package broadcasttest provides an in-memory broadcast.Channel. Test use only.
package broadcasttest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/pscheid92/sheetpulse/internal/domain"
)

var ErrInjected = errors.New("injected write failure")

// Channel records frames in memory. A failing channel rejects every write and
// a hanging one blocks each write until ctx ends or the channel is closed.
type Channel struct {
	mu          sync.Mutex
	frames      [][]byte
	fail        bool
	hang        bool
	closed      chan struct{}
	closeCount  int
	closeCode   int
	closeReason string
}

func New() *Channel {
	return &Channel{closed: make(chan struct{})}
}

func Failing() *Channel {
	c := New()
	c.fail = true
	return c
}

func Hanging() *Channel {
	c := New()
	c.hang = true
	return c
}

func (c *Channel) WriteText(ctx context.Context, data []byte) error {
	c.mu.Lock()
	fail, hang := c.fail, c.hang
	c.mu.Unlock()

	if fail {
		return ErrInjected
	}
	if hang {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return domain.ErrSessionClosed
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return domain.ErrSessionClosed
	default:
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *Channel) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	if c.closeCount == 1 {
		c.closeCode = code
		c.closeReason = reason
		close(c.closed)
	}
	return nil
}

// SetHang toggles hanging writes.
func (c *Channel) SetHang(hang bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hang = hang
}

func (c *Channel) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

// Messages decodes every recorded frame.
func (c *Channel) Messages() []domain.Message {
	frames := c.Frames()
	out := make([]domain.Message, 0, len(frames))
	for _, f := range frames {
		var m domain.Message
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Types lists the message types received, in order.
func (c *Channel) Types() []domain.MessageType {
	msgs := c.Messages()
	out := make([]domain.MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func (c *Channel) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// CloseInfo returns the first close code and reason and the number of Close calls.
func (c *Channel) CloseInfo() (code int, reason string, calls int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason, c.closeCount
}

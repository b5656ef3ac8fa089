package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	"github.com/pscheid92/sheetpulse/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendTimeout = 5 * time.Second
	maxParallelSends   = 64
)

// Broadcaster delivers messages to sessions held by a Registry.
type Broadcaster struct {
	registry    *Registry
	clock       clockwork.Clock
	sendTimeout time.Duration
	metrics     *metrics.WebSocketMetrics
}

func NewBroadcaster(registry *Registry, clock clockwork.Clock, sendTimeout time.Duration, m *metrics.WebSocketMetrics) *Broadcaster {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &Broadcaster{
		registry:    registry,
		clock:       clock,
		sendTimeout: sendTimeout,
		metrics:     m,
	}
}

// BroadcastToAll sends msg to every live session and returns the number of
// successful sends. Sessions that fail are removed once the pass is over.
func (b *Broadcaster) BroadcastToAll(ctx context.Context, msg domain.Message) int {
	sessions := b.registry.LiveSessions()
	if len(sessions) == 0 {
		return 0
	}

	data, err := msg.Encode()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode broadcast message", "type", msg.Type, "error", err)
		return 0
	}

	errs := make([]error, len(sessions))
	var g errgroup.Group
	g.SetLimit(maxParallelSends)
	for i, s := range sessions {
		g.Go(func() error {
			errs[i] = b.deliver(ctx, s, data)
			return nil
		})
	}
	_ = g.Wait()

	sent := 0
	for i, s := range sessions {
		if errs[i] == nil {
			sent++
			continue
		}
		b.metrics.SendFailures.Inc()
		slog.WarnContext(ctx, "Broadcast send failed", "session_id", s.ID.String(), "error", errs[i])
		b.registry.Disconnect(s, sendErrorReason(errs[i]))
	}

	b.metrics.MessagesSent.WithLabelValues(string(msg.Type)).Add(float64(sent))
	slog.DebugContext(ctx, "Broadcast finished", "type", msg.Type, "sent", sent, "sessions", len(sessions))
	return sent
}

// SendTo delivers msg to a single session. A failed send removes the session.
func (b *Broadcaster) SendTo(ctx context.Context, s *Session, msg domain.Message) bool {
	data, err := msg.Encode()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode message", "type", msg.Type, "error", err)
		return false
	}

	if err := b.deliver(ctx, s, data); err != nil {
		b.metrics.SendFailures.Inc()
		slog.WarnContext(ctx, "Send failed", "session_id", s.ID.String(), "type", msg.Type, "error", err)
		b.registry.Disconnect(s, sendErrorReason(err))
		return false
	}

	b.metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()
	return true
}

// HandleInbound answers a "ping" text (any case, surrounding space ignored)
// with a pong to the same session. Anything else is ignored.
func (b *Broadcaster) HandleInbound(ctx context.Context, s *Session, text string) {
	if !strings.EqualFold(strings.TrimSpace(text), "ping") {
		slog.DebugContext(ctx, "Ignoring inbound message", "session_id", s.ID.String(), "bytes", len(text))
		return
	}
	b.SendTo(ctx, s, domain.PongMessage(b.clock.Now()))
}

// ProbeLiveness sends a health-check ping bounded by timeout. It never removes
// the session; the caller decides what a failed probe means.
func (b *Broadcaster) ProbeLiveness(ctx context.Context, s *Session, timeout time.Duration) bool {
	data, err := domain.PingMessage(b.clock.Now()).Encode()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.write(ctx, s, data); err != nil {
		slog.DebugContext(ctx, "Liveness probe failed", "session_id", s.ID.String(), "error", err)
		return false
	}
	b.metrics.MessagesSent.WithLabelValues(string(domain.MessagePing)).Inc()
	return true
}

func (b *Broadcaster) deliver(ctx context.Context, s *Session, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	return b.write(ctx, s, data)
}

// write returns when ctx ends even if the Channel does not honour ctx.
func (b *Broadcaster) write(ctx context.Context, s *Session, data []byte) error {
	done := make(chan error, 1)
	go func() { done <- s.send(ctx, data) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send timed out: %w", ctx.Err())
	}
}

func sendErrorReason(err error) string {
	return "send error: " + err.Error()
}

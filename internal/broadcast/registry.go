package broadcast

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	"github.com/pscheid92/sheetpulse/internal/domain"
)

const (
	ReasonServerFull         = "Server full"
	ReasonClientDisconnected = "client disconnected"
	ReasonStale              = "stale"
	ReasonShutdown           = "server shutting down"
)

// Registry is the set of live sessions, bounded by capacity.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	capacity int
	clock    clockwork.Clock
	metrics  *metrics.WebSocketMetrics
}

func NewRegistry(capacity int, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session, capacity),
		capacity: capacity,
		clock:    clock,
		metrics:  m,
	}
}

// Connect admits ch as a new session. At capacity the channel is closed with
// 1008 "Server full" and domain.ErrCapacityReached is returned.
func (r *Registry) Connect(ch Channel, remoteAddr string) (*Session, error) {
	r.mu.Lock()
	if len(r.sessions) >= r.capacity {
		r.mu.Unlock()

		r.metrics.Rejections.WithLabelValues("capacity").Inc()
		slog.Warn("Rejecting websocket session: capacity reached",
			"remote_addr", remoteAddr,
			"capacity", r.capacity,
		)
		_ = ch.Close(websocket.ClosePolicyViolation, ReasonServerFull)
		return nil, domain.ErrCapacityReached
	}

	s := &Session{
		ID:          uuid.New(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: r.clock.Now(),
		channel:     ch,
	}
	s.live.Store(true)
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.metrics.ActiveConnections.Set(float64(count))
	slog.Info("Websocket session connected", "session_id", s.ID.String(), "remote_addr", remoteAddr, "live_sessions", count)
	return s, nil
}

// Disconnect removes s and closes its channel. Only the first call for a
// session has any effect; it reports whether this call removed it.
func (r *Registry) Disconnect(s *Session, reason string) bool {
	r.mu.Lock()
	current, ok := r.sessions[s.ID]
	if !ok || current != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.ID)
	s.live.Store(false)
	count := len(r.sessions)
	r.mu.Unlock()

	_ = s.channel.Close(closeCode(reason), reason)

	r.metrics.ActiveConnections.Set(float64(count))
	r.metrics.Disconnects.Inc()
	slog.Info("Websocket session removed", "session_id", s.ID.String(), "reason", reason, "live_sessions", count)
	return true
}

// LiveSessions returns a point-in-time copy of the live set, oldest first.
func (r *Registry) LiveSessions() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *Session) int {
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) Capacity() int {
	return r.capacity
}

// CloseAll disconnects every live session and returns how many were removed.
func (r *Registry) CloseAll(reason string) int {
	closed := 0
	for _, s := range r.LiveSessions() {
		if r.Disconnect(s, reason) {
			closed++
		}
	}
	return closed
}

func closeCode(reason string) int {
	switch reason {
	case ReasonShutdown:
		return websocket.CloseGoingAway
	case ReasonServerFull:
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseNormalClosure
	}
}

package broadcast

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/sheetpulse/internal/domain"
)

// Session is one admitted client. It is live from Connect until the first
// Disconnect, after which every send fails with domain.ErrSessionClosed.
type Session struct {
	ID          uuid.UUID
	RemoteAddr  string
	ConnectedAt time.Time

	channel Channel
	live    atomic.Bool
}

func (s *Session) Live() bool {
	return s.live.Load()
}

func (s *Session) send(ctx context.Context, data []byte) error {
	if !s.Live() {
		return domain.ErrSessionClosed
	}
	return s.channel.WriteText(ctx, data)
}

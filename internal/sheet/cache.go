package sheet

import (
	"sync"

	"github.com/pscheid92/sheetpulse/internal/domain"
)

// SnapshotCache holds the latest accepted snapshot.
type SnapshotCache struct {
	mu      sync.RWMutex
	current domain.Snapshot
	has     bool
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{}
}

// Accept stores s and reports whether it differs from the previous snapshot.
// The first snapshot always counts as a change. The cache advances even when
// nothing changed, so the capture time stays fresh.
func (c *SnapshotCache) Accept(s domain.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := !c.has || !c.current.Equal(s)
	c.current = s
	c.has = true
	return changed
}

func (c *SnapshotCache) Current() (domain.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.has
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	"github.com/pscheid92/sheetpulse/internal/broadcast"
	"github.com/pscheid92/sheetpulse/internal/domain"
	"github.com/pscheid92/sheetpulse/internal/platform/correlation"
	"github.com/pscheid92/sheetpulse/internal/sheet"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	JobRefresh    = "refresh"
	JobStaleSweep = "stale_sweep"

	defaultProbeTimeout = 5 * time.Second
	maxParallelProbes   = 32
)

// Source returns the raw tabular body of the sheet.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// Normalizer turns a raw body into records.
type Normalizer interface {
	Submit(ctx context.Context, raw string) ([]domain.Record, sheet.Report, error)
}

// Engine ties the refresh cycle to the connected sessions.
type Engine struct {
	source       Source
	normalizer   Normalizer
	cache        *sheet.SnapshotCache
	registry     *broadcast.Registry
	broadcaster  *broadcast.Broadcaster
	clock        clockwork.Clock
	probeTimeout time.Duration
	metrics      *metrics.RefreshMetrics

	refreshGroup singleflight.Group
}

type EngineConfig struct {
	Source       Source
	Normalizer   Normalizer
	Cache        *sheet.SnapshotCache
	Registry     *broadcast.Registry
	Broadcaster  *broadcast.Broadcaster
	Clock        clockwork.Clock
	ProbeTimeout time.Duration
	Metrics      *metrics.RefreshMetrics
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	return &Engine{
		source:       cfg.Source,
		normalizer:   cfg.Normalizer,
		cache:        cfg.Cache,
		registry:     cfg.Registry,
		broadcaster:  cfg.Broadcaster,
		clock:        cfg.Clock,
		probeTimeout: cfg.ProbeTimeout,
		metrics:      cfg.Metrics,
	}
}

// Jobs returns the periodic work the engine needs scheduled.
func (e *Engine) Jobs(updateInterval, sweepInterval time.Duration) []Job {
	return []Job{
		{Name: JobRefresh, Interval: updateInterval, RunOnStart: true, Run: e.Refresh},
		{Name: JobStaleSweep, Interval: sweepInterval, Run: func(ctx context.Context) error {
			e.SweepStale(ctx)
			return nil
		}},
	}
}

// Refresh runs one fetch, normalize and publish cycle. A failed fetch or an
// unparseable body leaves the cache untouched and tells clients with an
// error message; the failure is returned for logging. Callers arriving while
// a cycle is running share its result instead of starting another.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err, shared := e.refreshGroup.Do(JobRefresh, func() (any, error) {
		return nil, e.refresh(ctx)
	})
	if shared {
		slog.DebugContext(ctx, "Joined in-flight refresh cycle")
	}
	return err
}

func (e *Engine) refresh(ctx context.Context) error {
	ctx, cycleID := correlation.Ensure(ctx)
	start := e.clock.Now()
	defer func() {
		e.metrics.CycleDuration.Observe(e.clock.Since(start).Seconds())
	}()

	slog.DebugContext(ctx, "Refresh cycle started", "cycle_id", cycleID)

	snapshot, err := e.load(ctx)
	if err != nil {
		// Only fetch and parse failures reach sessions. Anything else (a
		// stopped normalizer, shutdown) aborts the cycle quietly.
		if !domain.IsCycleFailure(err) || ctx.Err() != nil {
			e.metrics.Cycles.WithLabelValues("aborted").Inc()
			slog.WarnContext(ctx, "Refresh cycle aborted", "error", err)
			return err
		}

		e.metrics.Cycles.WithLabelValues("failed").Inc()
		slog.ErrorContext(ctx, "Refresh cycle failed", "error", err)

		sent := e.broadcaster.BroadcastToAll(ctx, domain.ErrorMessage("refresh failed: "+err.Error(), e.clock.Now()))
		slog.InfoContext(ctx, "Refresh failure announced", "sessions", sent)
		return err
	}

	changed := e.cache.Accept(snapshot)
	e.metrics.CachedRecords.Set(float64(snapshot.TotalRecords()))
	e.metrics.LastSuccessful.Set(float64(snapshot.CapturedAt().Unix()))

	if !changed {
		e.metrics.Cycles.WithLabelValues("unchanged").Inc()
		slog.DebugContext(ctx, "Sheet unchanged", "records", snapshot.TotalRecords())
		return nil
	}

	e.metrics.Cycles.WithLabelValues("changed").Inc()
	sent := e.broadcaster.BroadcastToAll(ctx, domain.DataUpdateMessage(snapshot))
	slog.InfoContext(ctx, "Sheet changed, update broadcast",
		"records", snapshot.TotalRecords(),
		"sessions", sent,
	)
	return nil
}

func (e *Engine) load(ctx context.Context) (domain.Snapshot, error) {
	raw, err := e.source.Fetch(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}

	records, report, err := e.normalizer.Submit(ctx, raw)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("normalize: %w", err)
	}

	if report.Skipped > 0 {
		e.metrics.RowsSkipped.Add(float64(report.Skipped))
		for _, rowErr := range report.RowErrors {
			slog.WarnContext(ctx, "Row skipped", "row", rowErr.Row, "error", rowErr.Err)
		}
	}
	slog.DebugContext(ctx, "Sheet normalized",
		"rows", report.Rows,
		"kept", report.Kept,
		"blank", report.Blank,
		"skipped", report.Skipped,
	)

	return domain.NewSnapshot(records, e.clock.Now()), nil
}

// SweepStale pings every live session and disconnects those that do not
// accept the ping in time. It returns how many were removed.
func (e *Engine) SweepStale(ctx context.Context) int {
	sessions := e.registry.LiveSessions()
	if len(sessions) == 0 {
		return 0
	}

	alive := make([]bool, len(sessions))
	var g errgroup.Group
	g.SetLimit(maxParallelProbes)
	for i, s := range sessions {
		g.Go(func() error {
			alive[i] = e.broadcaster.ProbeLiveness(ctx, s, e.probeTimeout)
			return nil
		})
	}
	_ = g.Wait()

	removed := 0
	for i, s := range sessions {
		if alive[i] {
			continue
		}
		if e.registry.Disconnect(s, broadcast.ReasonStale) {
			removed++
		}
	}

	if removed > 0 {
		slog.InfoContext(ctx, "Stale sessions removed", "removed", removed, "probed", len(sessions))
	}
	return removed
}

// OnConnect greets a new session with the current snapshot, if there is one.
func (e *Engine) OnConnect(ctx context.Context, s *broadcast.Session) {
	snapshot, ok := e.cache.Current()
	if !ok {
		return
	}
	e.broadcaster.SendTo(ctx, s, domain.InitialDataMessage(snapshot))
}

// Current returns the cached snapshot or domain.ErrNoSnapshot.
func (e *Engine) Current() (domain.Snapshot, error) {
	snapshot, ok := e.cache.Current()
	if !ok {
		return domain.Snapshot{}, domain.ErrNoSnapshot
	}
	return snapshot, nil
}

func (e *Engine) Stats() domain.Stats {
	stats := domain.Stats{
		LiveSessionCount: e.registry.Count(),
		Status:           domain.StatusOperational,
	}
	if snapshot, ok := e.cache.Current(); ok {
		stats.CachedRecordCount = snapshot.TotalRecords()
		at := snapshot.CapturedAt()
		stats.LastUpdate = &at
	}
	return stats
}

package sheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pscheid92/sheetpulse/internal/domain"
)

// ErrWorkerStopped is returned by Submit after Stop.
var ErrWorkerStopped = errors.New("normalize worker stopped")

type normalizeResult struct {
	records []domain.Record
	report  Report
	err     error
}

type normalizeCmd struct {
	ctx     context.Context
	raw     string
	replyCh chan normalizeResult
}

// Worker runs normalization on a dedicated goroutine. Callers block in
// Submit until their body has been processed.
type Worker struct {
	cmdCh    chan normalizeCmd
	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewWorker() *Worker {
	w := &Worker{
		cmdCh:   make(chan normalizeCmd, 4),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit hands raw to the worker and waits for the records or for ctx to end.
func (w *Worker) Submit(ctx context.Context, raw string) ([]domain.Record, Report, error) {
	select {
	case <-w.stopped:
		return nil, Report{}, ErrWorkerStopped
	default:
	}

	cmd := normalizeCmd{ctx: ctx, raw: raw, replyCh: make(chan normalizeResult, 1)}

	select {
	case w.cmdCh <- cmd:
	case <-w.stopped:
		return nil, Report{}, ErrWorkerStopped
	case <-ctx.Done():
		return nil, Report{}, ctx.Err()
	}

	select {
	case res := <-cmd.replyCh:
		return res.records, res.report, res.err
	case <-w.done:
		// Enqueued after the final drain.
		select {
		case res := <-cmd.replyCh:
			return res.records, res.report, res.err
		default:
			return nil, Report{}, ErrWorkerStopped
		}
	case <-ctx.Done():
		return nil, Report{}, ctx.Err()
	}
}

// Stop finishes queued work and waits for the goroutine to exit.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopped) })
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		select {
		case cmd := <-w.cmdCh:
			w.handle(cmd)
		case <-w.stopped:
			for {
				select {
				case cmd := <-w.cmdCh:
					w.handle(cmd)
				default:
					return
				}
			}
		}
	}
}

func (w *Worker) handle(cmd normalizeCmd) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(cmd.ctx, "Normalize worker panic recovered", "panic", r)
			cmd.replyCh <- normalizeResult{err: &domain.ParseError{Err: fmt.Errorf("normalize panic: %v", r)}}
		}
	}()

	if cmd.ctx.Err() != nil {
		cmd.replyCh <- normalizeResult{err: cmd.ctx.Err()}
		return
	}
	records, report, err := NormalizeWithReport(cmd.raw)
	cmd.replyCh <- normalizeResult{records: records, report: report, err: err}
}

package worker

import (
	"context"
	"time"

	"roomstay/pkg/logger"
)

// CompletionSweeper is the subset of the booking service the worker needs.
type CompletionSweeper interface {
	CompleteElapsed(ctx context.Context) (int64, error)
}

// CompletionWorker periodically moves stays whose checkout day has passed
// from BOOKED to COMPLETED. One run executes at startup so a restarted
// service catches up immediately instead of waiting a full interval.
type CompletionWorker struct {
	sweeper  CompletionSweeper
	interval time.Duration
	log      *logger.Logger
}

func NewCompletionWorker(sweeper CompletionSweeper, interval time.Duration, log *logger.Logger) *CompletionWorker {
	return &CompletionWorker{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled.
func (w *CompletionWorker) Run(ctx context.Context) {
	w.log.Info("Completion worker started", "interval", w.interval)

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Completion worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *CompletionWorker) sweep(ctx context.Context) {
	completed, err := w.sweeper.CompleteElapsed(ctx)
	if err != nil {
		w.log.Error("Completion sweep failed", "error", err)
		return
	}
	if completed > 0 {
		w.log.Info("Completion sweep finished", "completed", completed)
	}
}

// Package worker triggers pipeline runs on a fixed interval.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/pipeline"
)

// Runner executes one full pipeline run.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)
}

// Worker runs the pipeline once immediately and then interval after each
// run returns, so runs never overlap.
type Worker struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
}

// New creates a worker.
func New(runner Runner, interval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Worker{runner: runner, interval: interval, logger: logger}
}

// Start blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started", zap.Duration("interval", w.interval))
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-timer.C:
		}

		w.runOnce(ctx)
		if ctx.Err() == nil {
			w.logger.Info("next run scheduled", zap.Time("at", time.Now().Add(w.interval)))
		}
		timer.Reset(w.interval)
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	r, err := w.runner.Run(ctx, pipeline.Options{})
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		w.logger.Warn("previous run still active, skipping")
	case err != nil:
		w.logger.Error("run failed", zap.Error(err))
	default:
		for _, s := range r.Steps {
			if s.Err != nil {
				w.logger.Warn("step reported errors", zap.String("step", s.Name), zap.String("summary", s.Summary), zap.Error(s.Err))
			}
		}
	}
}

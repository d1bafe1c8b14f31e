// Package cronrunner schedules the engine's background sweeps.
package cronrunner

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	sched  *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	baseCtx context.Context
}

func New(logger *zap.Logger) *Runner {
	return &Runner{
		sched:  cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Add registers a named job. Jobs receive the context passed to Start, so a
// shutdown signal cancels in-flight sweeps; jobs scheduled after cancellation
// are skipped.
func (r *Runner) Add(name, spec string, job func(context.Context)) error {
	_, err := r.sched.AddFunc(spec, func() {
		r.mu.Lock()
		ctx := r.baseCtx
		r.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		job(ctx)
		if r.logger != nil {
			r.logger.Debug("cron job ran",
				zap.String("job", name),
				zap.Duration("elapsed", time.Since(started)))
		}
	})
	return err
}

func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.sched.Start()
}

// Stop halts scheduling and waits for running jobs to return.
func (r *Runner) Stop() {
	<-r.sched.Stop().Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}

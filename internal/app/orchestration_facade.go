package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/primary"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
	"github.com/gridcompute/gridcompute/internal/workerpool"
)

// OrchestrationFacade is the per-process event surface: it runs the
// scheduler against the worker pool and owns clean shutdown ordering.
type OrchestrationFacade struct {
	scheduler *SchedulerService
	status    *StatusService
	pool      *workerpool.Pool
	registry  secondary.CaseRegistry
	logger    *slog.Logger

	drainTimeout time.Duration
}

var (
	_ primary.GridRunner    = (*OrchestrationFacade)(nil)
	_ primary.StatusService = (*OrchestrationFacade)(nil)
)

// NewOrchestrationFacade wires the facade over an assembled scheduler, pool,
// and registry.
func NewOrchestrationFacade(scheduler *SchedulerService, status *StatusService, pool *workerpool.Pool, registry secondary.CaseRegistry, drainTimeout time.Duration, logger *slog.Logger) *OrchestrationFacade {
	if logger == nil {
		logger = slog.Default()
	}
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	return &OrchestrationFacade{
		scheduler:    scheduler,
		status:       status,
		pool:         pool,
		registry:     registry,
		logger:       logger,
		drainTimeout: drainTimeout,
	}
}

// Run participates in the grid until ctx is cancelled, then shuts down in
// order: stop accepting claims, let in-flight jobs finish or cancel them at
// the drain deadline, stop the loops (heartbeats keep flowing until then),
// close the registry.
func (f *OrchestrationFacade) Run(ctx context.Context) error {
	// The loops outlive ctx so heartbeats continue through the drain window.
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()

	loopDone := make(chan error, 1)
	go func() { loopDone <- f.scheduler.Run(loopCtx) }()

	f.logger.Info("participating in grid", "capacity", f.pool.Capacity())

	select {
	case err := <-loopDone:
		// Loops only stop on cancellation; anything else is fatal wiring.
		return err
	case <-ctx.Done():
	}

	f.logger.Info("shutting down, draining worker pool", "active", f.pool.ActiveCount())
	f.pool.Pause()

	deadline := time.After(f.drainTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
drain:
	for f.pool.ActiveCount() > 0 {
		select {
		case <-deadline:
			f.logger.Warn("drain deadline reached, cancelling remaining jobs", "active", f.pool.ActiveCount())
			f.pool.CancelAll()
			break drain
		case <-ticker.C:
		}
	}
	f.pool.Wait()

	stopLoops()
	<-loopDone

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.registry.Close(closeCtx); err != nil {
		f.logger.Warn("failed to close registry cleanly", "error", err)
	}
	f.logger.Info("shutdown complete")
	return nil
}

// MyCases exposes the submitted-cases projection to UI collaborators.
func (f *OrchestrationFacade) MyCases(ctx context.Context) ([]models.StatusProjection, error) {
	return f.status.MyCases(ctx)
}

// MyProcesses exposes the local-jobs projection to UI collaborators.
func (f *OrchestrationFacade) MyProcesses(ctx context.Context) ([]models.StatusProjection, error) {
	return f.status.MyProcesses(ctx)
}

// Pause stops accepting new claims without killing running jobs.
func (f *OrchestrationFacade) Pause() { f.pool.Pause() }

// Resume re-enables claiming.
func (f *OrchestrationFacade) Resume() { f.pool.Resume() }

// SetCapacity adjusts the worker parallelism cap live.
func (f *OrchestrationFacade) SetCapacity(n int) { f.pool.SetCapacity(n) }

// Package workerpool bounds concurrent adapter execution on the local
// machine. The pool is passive: the scheduler claims work and pushes jobs in;
// the pool owns the per-job scratch lifecycle and reports results back
// through a callback.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gridcompute/gridcompute/internal/adapters/archive"
	"github.com/gridcompute/gridcompute/internal/core/griderrors"
	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
)

// Result is the outcome of one job: either a result bundle ready for upload
// or the error that stopped it.
type Result struct {
	Job    models.JobDescriptor
	Bundle []byte
	Err    error
}

// Pool runs adapter process invocations with a live-adjustable concurrency
// cap. Lowering the cap never interrupts running jobs; it only stops new
// submissions until the pool drains below the new cap.
type Pool struct {
	archive secondary.CaseArchive
	index   secondary.CapabilityIndex
	logger  *slog.Logger

	mu       sync.Mutex
	capacity int
	paused   bool
	running  map[string]*job // keyed by case id
	wg       sync.WaitGroup
}

type job struct {
	descriptor models.JobDescriptor
	cancel     context.CancelFunc
}

// New creates a pool with the given initial capacity.
func New(arch secondary.CaseArchive, index secondary.CapabilityIndex, capacity int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		archive:  arch,
		index:    index,
		logger:   logger,
		capacity: capacity,
		running:  make(map[string]*job),
	}
}

// SetCapacity adjusts the concurrency cap. Takes effect on the next
// submission; running jobs are never interrupted.
func (p *Pool) SetCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capacity = n
}

// Capacity returns the current concurrency cap.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Pause stops accepting new jobs without killing running ones.
func (p *Pool) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume re-enables job acceptance.
func (p *Pool) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

// Accepting reports whether a new job would be admitted right now. The
// scheduler consults this before each claim attempt so it never claims work
// it cannot start.
func (p *Pool) Accepting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.paused && len(p.running) < p.capacity
}

// ActiveCount returns the number of jobs currently running.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Running returns a snapshot of the jobs currently executing.
func (p *Pool) Running() []models.JobDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.JobDescriptor, 0, len(p.running))
	for _, j := range p.running {
		out = append(out, j.descriptor)
	}
	return out
}

// Submit starts a job if a slot is free. done is invoked exactly once from
// the job's goroutine, after the scratch directory has been reclaimed.
func (p *Pool) Submit(ctx context.Context, descriptor models.JobDescriptor, done func(Result)) error {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return fmt.Errorf("worker pool is paused")
	}
	if len(p.running) >= p.capacity {
		p.mu.Unlock()
		return fmt.Errorf("worker pool is at capacity (%d)", p.capacity)
	}
	if _, exists := p.running[descriptor.CaseID]; exists {
		p.mu.Unlock()
		return fmt.Errorf("case %s is already running", descriptor.CaseID)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{descriptor: descriptor, cancel: cancel}
	p.running[descriptor.CaseID] = j
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		result := p.execute(jobCtx, descriptor)
		cancel()

		p.mu.Lock()
		delete(p.running, descriptor.CaseID)
		p.mu.Unlock()

		done(result)
	}()
	return nil
}

// Cancel terminates a running job. Best-effort: a job past its adapter
// invocation may still report success before noticing.
func (p *Pool) Cancel(caseID string) bool {
	p.mu.Lock()
	j, ok := p.running[caseID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	j.cancel()
	return true
}

// CancelAll terminates every running job.
func (p *Pool) CancelAll() {
	p.mu.Lock()
	for _, j := range p.running {
		j.cancel()
	}
	p.mu.Unlock()
}

// Wait blocks until every submitted job's done callback has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// execute runs one job through its full lifecycle. The scratch directory is
// reclaimed on every exit path.
func (p *Pool) execute(ctx context.Context, descriptor models.JobDescriptor) Result {
	result := Result{Job: descriptor}

	scratch, err := p.archive.ScratchDir(descriptor.CaseID)
	if err != nil {
		result.Err = err
		return result
	}
	defer func() {
		if err := p.archive.CleanupScratch(scratch); err != nil {
			p.logger.Warn("failed to reclaim scratch directory", "case", descriptor.CaseID, "dir", scratch, "error", err)
		}
	}()

	bundle, err := p.archive.GetInput(ctx, descriptor.InputPath)
	if err != nil {
		result.Err = err
		return result
	}
	inputs, err := archive.Unbundle(bundle, scratch)
	if err != nil {
		result.Err = griderrors.New(griderrors.AdapterFailed,
			fmt.Errorf("failed to materialize inputs for case %s: %w", descriptor.CaseID, err))
		return result
	}

	adapter, err := p.index.Adapter(descriptor.Application)
	if err != nil {
		result.Err = err
		return result
	}

	outputs, err := adapter.Process(ctx, scratch, inputs)
	if err != nil {
		result.Err = err
		return result
	}
	if ctx.Err() != nil {
		result.Err = ctx.Err()
		return result
	}

	// Zero declared outputs is legal: the result archive is empty but present.
	out, err := archive.Bundle(scratch, outputs)
	if err != nil {
		result.Err = griderrors.New(griderrors.AdapterFailed,
			fmt.Errorf("failed to package outputs for case %s: %w", descriptor.CaseID, err))
		return result
	}
	result.Bundle = out
	return result
}

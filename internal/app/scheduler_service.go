package app

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridcompute/gridcompute/internal/adapters/archive"
	"github.com/gridcompute/gridcompute/internal/core/caselifecycle"
	"github.com/gridcompute/gridcompute/internal/core/griderrors"
	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
	"github.com/gridcompute/gridcompute/internal/workerpool"
)

// SchedulerConfig carries the identity, scope, and timing parameters of one
// scheduler instance.
type SchedulerConfig struct {
	Identity  models.Identity
	UserGroup string
	Instance  string

	HeartbeatInterval time.Duration
	ReclaimGrace      time.Duration
	PollInterval      time.Duration
	RetrieveInterval  time.Duration
}

// SchedulerService is the distributed lifecycle engine: it claims work for
// the local worker pool, keeps claims alive, reclaims stalled claims across
// the grid, and pulls finished results back for cases this machine submitted.
//
// Each duty runs as its own goroutine so a long registry scan can never
// starve heartbeat emission. The loops absorb transient errors; nothing short
// of context cancellation stops them.
type SchedulerService struct {
	registry secondary.CaseRegistry
	archive  secondary.CaseArchive
	index    secondary.CapabilityIndex
	pool     *workerpool.Pool
	executor EffectExecutor
	cfg      SchedulerConfig
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]models.JobDescriptor // jobs being heartbeated
}

// NewSchedulerService wires a scheduler over its ports.
func NewSchedulerService(registry secondary.CaseRegistry, archive secondary.CaseArchive, index secondary.CapabilityIndex, pool *workerpool.Pool, executor EffectExecutor, cfg SchedulerConfig, logger *slog.Logger) *SchedulerService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetrieveInterval <= 0 {
		cfg.RetrieveInterval = cfg.PollInterval
	}
	return &SchedulerService{
		registry: registry,
		archive:  archive,
		index:    index,
		pool:     pool,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		active:   make(map[string]models.JobDescriptor),
	}
}

// Run drives the four scheduler loops until ctx is cancelled.
func (s *SchedulerService) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx, s.cfg.PollInterval, true, s.pollOnce) })
	g.Go(func() error { return s.loop(ctx, s.cfg.HeartbeatInterval, false, s.heartbeatOnce) })
	g.Go(func() error { return s.loop(ctx, s.cfg.ReclaimGrace/2, true, s.reclaimOnce) })
	g.Go(func() error {
		return s.loop(ctx, s.cfg.RetrieveInterval, true, func(ctx context.Context) {
			if _, err := s.RetrieveOnce(ctx, false); err != nil {
				s.logger.Warn("retrieval pass failed", "error", err)
			}
		})
	})
	return g.Wait()
}

// loop runs fn on a ticker until ctx is cancelled. Jitter desynchronizes
// machines that started at the same moment; heartbeats run unjittered so the
// interval bound holds.
func (s *SchedulerService) loop(ctx context.Context, interval time.Duration, jitter bool, fn func(context.Context)) error {
	if jitter {
		offset := time.Duration(rand.Int63n(int64(interval)/2 + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(offset):
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *SchedulerService) pollOnce(ctx context.Context) {
	if _, err := s.PollOnce(ctx); err != nil {
		s.logger.Warn("poll pass failed", "error", err)
	}
}

// PollOnce performs one poll-and-claim pass and reports how many cases were
// claimed. Claims lost to other machines are silently skipped.
func (s *SchedulerService) PollOnce(ctx context.Context) (int, error) {
	if !s.pool.Accepting() {
		return 0, nil
	}
	supported := s.index.SupportedApplications()
	if len(supported) == 0 {
		return 0, nil
	}
	apps := make([]string, 0, len(supported))
	for app := range supported {
		apps = append(apps, app)
	}

	candidates, err := s.registry.FindClaimable(ctx, s.cfg.UserGroup, s.cfg.Instance, apps)
	if err != nil {
		return 0, err
	}

	scope := caselifecycle.VisibilityContext{
		UserGroup:    s.cfg.UserGroup,
		Instance:     s.cfg.Instance,
		Applications: supported,
	}

	claimed := 0
	for i := range candidates {
		if !s.pool.Accepting() {
			break
		}
		rec := &candidates[i]
		if guard := caselifecycle.CanClaim(rec, scope); !guard.Allowed {
			continue
		}

		now := time.Now().UTC()
		ok, err := s.registry.Claim(ctx, rec.ID, s.cfg.Identity, now)
		if err != nil {
			s.logger.Warn("claim attempt failed", "case", rec.ID, "error", err)
			continue
		}
		if !ok {
			continue // someone else won
		}

		descriptor := models.JobDescriptor{
			CaseID:        rec.ID,
			Application:   rec.Application,
			InputPath:     rec.Path,
			Claimer:       s.cfg.Identity,
			OriginMachine: rec.Origin.Machine,
			StartedAt:     now,
		}
		s.track(descriptor)
		s.logger.Info("claimed case", "case", rec.ID, "application", rec.Application)

		if err := s.pool.Submit(ctx, descriptor, func(r workerpool.Result) { s.onJobDone(ctx, r) }); err != nil {
			// The pool filled up between the accepting check and the submit.
			// Stop heartbeating; reclamation will hand the case to someone else.
			s.untrack(rec.ID)
			s.logger.Warn("claimed case could not be started", "case", rec.ID, "error", err)
			continue
		}
		claimed++
	}
	return claimed, nil
}

// onJobDone publishes a successful job or lets a failed one lapse. A failed
// adapter is indistinguishable from a crashed machine at the protocol level:
// heartbeats stop and the case is reclaimed after the grace period.
func (s *SchedulerService) onJobDone(ctx context.Context, r workerpool.Result) {
	defer s.untrack(r.Job.CaseID)

	if r.Err != nil {
		s.logger.Error("job failed, case will lapse to reclamation",
			"case", r.Job.CaseID, "application", r.Job.Application, "error", r.Err)
		return
	}

	plan := caselifecycle.GenerateCompletionPlan(caselifecycle.CompletionPlanInput{
		CaseID:  r.Job.CaseID,
		Path:    r.Job.InputPath,
		Claimer: r.Job.Claimer,
		Now:     time.Now().UTC(),
		Bundle:  r.Bundle,
	})
	if err := s.executor.Execute(ctx, plan.Effects()); err != nil {
		if kind, ok := griderrors.KindOf(err); ok && kind == griderrors.ClaimLost {
			s.logger.Info("completion lost to reclamation, outputs discarded", "case", r.Job.CaseID)
			return
		}
		s.logger.Error("failed to publish completed job, case will lapse to reclamation",
			"case", r.Job.CaseID, "error", err)
		return
	}
	s.logger.Info("completed case", "case", r.Job.CaseID, "application", r.Job.Application)
}

func (s *SchedulerService) heartbeatOnce(ctx context.Context) {
	s.HeartbeatOnce(ctx)
}

// HeartbeatOnce emits one heartbeat for every locally active job. A rejected
// heartbeat means the claim is gone: the job is cancelled immediately and its
// outputs will be discarded.
func (s *SchedulerService) HeartbeatOnce(ctx context.Context) {
	for _, descriptor := range s.snapshot() {
		ok, err := s.registry.Heartbeat(ctx, descriptor.CaseID, s.cfg.Identity, time.Now().UTC())
		if err != nil {
			// Transient: keep the job running; if the registry stays away
			// longer than the grace period, someone else reclaims the case
			// and the eventual heartbeat rejection lands here.
			s.logger.Warn("heartbeat failed", "case", descriptor.CaseID, "error", err)
			continue
		}
		if !ok {
			s.logger.Info("claim lost, cancelling local job", "case", descriptor.CaseID)
			s.untrack(descriptor.CaseID)
			s.pool.Cancel(descriptor.CaseID)
		}
	}
}

func (s *SchedulerService) reclaimOnce(ctx context.Context) {
	if _, err := s.ReclaimOnce(ctx); err != nil {
		s.logger.Warn("reclamation pass failed", "error", err)
	}
}

// ReclaimOnce scans PROCESSING cases in scope and resets any whose heartbeat
// has gone stale. Cooperative: this machine reclaims anyone's stalled work,
// its own prior attempts included.
func (s *SchedulerService) ReclaimOnce(ctx context.Context) (int, error) {
	records, err := s.registry.FindProcessing(ctx, s.cfg.UserGroup, s.cfg.Instance)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	reclaimed := 0
	for i := range records {
		rec := &records[i]
		if guard := caselifecycle.CanReclaim(rec, now, s.cfg.ReclaimGrace); !guard.Allowed {
			continue
		}
		ok, err := s.registry.Reclaim(ctx, rec.ID, now, s.cfg.ReclaimGrace)
		if err != nil {
			s.logger.Warn("reclaim attempt failed", "case", rec.ID, "error", err)
			continue
		}
		if ok {
			reclaimed++
			s.logger.Info("reclaimed stalled case", "case", rec.ID,
				"stale_for", now.Sub(rec.LastHeartbeat).String())
		}
	}
	return reclaimed, nil
}

// RetrieveOnce performs one retrieval pass over this machine's PROCESSED
// cases: pull the result, hand it to the adapter's receive step, mark the
// case received. A failing receive leaves the case PROCESSED for the next
// pass; receive implementations are required to be idempotent for exactly
// this reason.
func (s *SchedulerService) RetrieveOnce(ctx context.Context, cleanup bool) ([]string, error) {
	records, err := s.registry.FindProcessedBy(ctx, s.cfg.UserGroup, s.cfg.Instance, s.cfg.Identity.Machine)
	if err != nil {
		return nil, err
	}

	var received []string
	for i := range records {
		rec := &records[i]
		if guard := caselifecycle.CanMarkReceived(rec, s.cfg.Identity.Machine); !guard.Allowed {
			continue
		}
		if err := s.retrieveOne(ctx, rec, cleanup); err != nil {
			s.logger.Warn("retrieval failed, will retry next pass", "case", rec.ID, "error", err)
			continue
		}
		received = append(received, rec.ID)
		s.logger.Info("received case", "case", rec.ID, "application", rec.Application)
	}
	return received, nil
}

func (s *SchedulerService) retrieveOne(ctx context.Context, rec *models.CaseRecord, cleanup bool) error {
	bundle, err := s.archive.GetResult(ctx, rec.Path)
	if err != nil {
		return err
	}
	scratch, err := s.archive.ScratchDir(rec.ID)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.archive.CleanupScratch(scratch); err != nil {
			s.logger.Warn("failed to reclaim retrieval scratch", "case", rec.ID, "error", err)
		}
	}()

	outputs, err := archive.Unbundle(bundle, scratch)
	if err != nil {
		return err
	}

	plan := caselifecycle.GenerateReceivePlan(caselifecycle.ReceivePlanInput{
		Record:      rec,
		ScratchDir:  scratch,
		OutputFiles: outputs,
		Now:         time.Now().UTC(),
		Cleanup:     cleanup,
	})
	return s.executor.Execute(ctx, plan.Effects())
}

func (s *SchedulerService) track(descriptor models.JobDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[descriptor.CaseID] = descriptor
}

func (s *SchedulerService) untrack(caseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, caseID)
}

func (s *SchedulerService) snapshot() []models.JobDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.JobDescriptor, 0, len(s.active))
	for _, d := range s.active {
		out = append(out, d)
	}
	return out
}

// ActiveJobs returns the jobs this scheduler is currently heartbeating.
func (s *SchedulerService) ActiveJobs() []models.JobDescriptor {
	return s.snapshot()
}

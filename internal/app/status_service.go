package app

import (
	"context"
	"log/slog"

	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/primary"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
)

// StatusService implements primary.StatusService: read-only projections of
// the cases this identity submitted and the jobs running locally.
type StatusService struct {
	registry  secondary.CaseRegistry
	scheduler *SchedulerService
	cfg       SchedulerConfig
	logger    *slog.Logger
}

var _ primary.StatusService = (*StatusService)(nil)

// NewStatusService wires a status service. scheduler may be nil for one-shot
// CLI invocations, which have no local jobs to report.
func NewStatusService(registry secondary.CaseRegistry, scheduler *SchedulerService, cfg SchedulerConfig, logger *slog.Logger) *StatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusService{registry: registry, scheduler: scheduler, cfg: cfg, logger: logger}
}

// MyCases lists the cases submitted by this identity, oldest first.
func (s *StatusService) MyCases(ctx context.Context) ([]models.StatusProjection, error) {
	records, err := s.registry.FindByOrigin(ctx, s.cfg.UserGroup, s.cfg.Instance, s.cfg.Identity)
	if err != nil {
		return nil, err
	}

	projections := make([]models.StatusProjection, 0, len(records))
	for i := range records {
		projections = append(projections, projectCase(&records[i]))
	}
	return projections, nil
}

// MyProcesses lists the jobs currently being heartbeated on this machine.
func (s *StatusService) MyProcesses(ctx context.Context) ([]models.StatusProjection, error) {
	if s.scheduler == nil {
		return nil, nil
	}
	jobs := s.scheduler.ActiveJobs()
	projections := make([]models.StatusProjection, 0, len(jobs))
	for _, j := range jobs {
		started := j.StartedAt
		projections = append(projections, models.StatusProjection{
			ID:                  j.CaseID,
			Application:         j.Application,
			Status:              models.StatusProcessing,
			CounterpartyMachine: j.OriginMachine,
			StartedAt:           &started,
		})
	}
	return projections, nil
}

// projectCase flattens a record into the UI-facing shape. The counterparty
// of a submitted case is whoever is, or last was, processing it.
func projectCase(rec *models.CaseRecord) models.StatusProjection {
	p := models.StatusProjection{
		ID:          rec.ID,
		Application: rec.Application,
		Status:      rec.Status,
		SubmittedAt: rec.Origin.SubmittedAt,
		Attempts:    len(rec.Processors.Attempts),
	}
	if cur := rec.Processors.Current; cur != nil {
		p.CounterpartyMachine = cur.Machine
		started := cur.StartedAt
		p.StartedAt = &started
		p.EndedAt = cur.EndedAt
	} else if n := len(rec.Processors.Attempts); n > 0 {
		p.CounterpartyMachine = rec.Processors.Attempts[n-1].Machine
	}
	return p
}

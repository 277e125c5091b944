package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridcompute/gridcompute/internal/adapters/archive"
	"github.com/gridcompute/gridcompute/internal/core/caselifecycle"
	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/primary"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
)

// SubmissionService implements primary.SubmissionService: it turns a user
// selection into one or more cases on the grid. The input upload always
// precedes the record insert, so no reader ever sees a case whose input is
// missing.
type SubmissionService struct {
	registry secondary.CaseRegistry
	index    secondary.CapabilityIndex
	executor EffectExecutor
	cfg      SchedulerConfig
	logger   *slog.Logger
}

var _ primary.SubmissionService = (*SubmissionService)(nil)

// NewSubmissionService wires a submission service over its ports.
func NewSubmissionService(registry secondary.CaseRegistry, index secondary.CapabilityIndex, executor EffectExecutor, cfg SchedulerConfig, logger *slog.Logger) *SubmissionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionService{registry: registry, index: index, executor: executor, cfg: cfg, logger: logger}
}

// Submit runs the application's send step over the selection and creates one
// case per bundle spec it returns.
func (s *SubmissionService) Submit(ctx context.Context, req primary.SubmitRequest) (*primary.SubmitResponse, error) {
	adapter, err := s.index.Adapter(req.Application)
	if err != nil {
		return nil, err
	}
	specs, err := adapter.Send(ctx, req.Selection)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("application %s produced no input bundles for this selection", req.Application)
	}

	resp := &primary.SubmitResponse{}
	for _, spec := range specs {
		id, err := s.submitOne(ctx, req.Application, spec)
		if err != nil {
			// Cases already created stand; report what landed alongside the error.
			return resp, fmt.Errorf("submitted %d of %d bundles: %w", len(resp.CaseIDs), len(specs), err)
		}
		resp.CaseIDs = append(resp.CaseIDs, id)
	}
	return resp, nil
}

func (s *SubmissionService) submitOne(ctx context.Context, application string, spec secondary.BundleSpec) (string, error) {
	bundle, err := archive.Bundle("", spec.Files)
	if err != nil {
		return "", fmt.Errorf("failed to package input bundle: %w", err)
	}

	id := s.registry.NewID()
	now := time.Now().UTC()
	record := &models.CaseRecord{
		ID:          id,
		UserGroup:   s.cfg.UserGroup,
		Instance:    s.cfg.Instance,
		Application: application,
		Status:      models.StatusToProcess,
		Path:        archive.CasePath(s.cfg.Identity.User, s.cfg.Identity.Machine, id),
		Origin: models.Origin{
			Machine:     s.cfg.Identity.Machine,
			User:        s.cfg.Identity.User,
			SubmittedAt: now,
		},
	}

	plan := caselifecycle.GenerateSubmissionPlan(caselifecycle.SubmissionPlanInput{
		Record: record,
		Bundle: bundle,
	})
	if err := s.executor.Execute(ctx, plan.Effects()); err != nil {
		return "", err
	}
	s.logger.Info("submitted case", "case", id, "application", application, "files", len(spec.Files))
	return id, nil
}

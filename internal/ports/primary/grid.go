// Package primary defines the primary ports (driving adapters) for the
// application. CLI and UI collaborators depend on these interfaces, never on
// the service implementations behind them.
package primary

import (
	"context"

	"github.com/gridcompute/gridcompute/internal/core/models"
)

// SubmitRequest describes one submission: a user selection to be turned into
// input bundles by the application's send step.
type SubmitRequest struct {
	Application string
	Selection   []string
}

// SubmitResponse reports the cases created for one submission.
type SubmitResponse struct {
	CaseIDs []string
}

// SubmissionService is the primary port for submitting cases to the grid.
type SubmissionService interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
}

// RetrievalService is the primary port for pulling finished results back to
// the originator.
type RetrievalService interface {
	// RetrieveAll performs one retrieval pass over this machine's PROCESSED
	// cases and returns the ids marked received. With cleanup set, archives
	// and records are deleted after each successful receive.
	RetrieveAll(ctx context.Context, cleanup bool) ([]string, error)
}

// StatusService is the primary port for UI status projections.
type StatusService interface {
	// MyCases lists the cases submitted by this identity, oldest first.
	MyCases(ctx context.Context) ([]models.StatusProjection, error)

	// MyProcesses lists the jobs currently running on this machine.
	MyProcesses(ctx context.Context) ([]models.StatusProjection, error)
}

// GridRunner is the primary port for the long-running participant loop.
type GridRunner interface {
	// Run participates in the grid until ctx is cancelled, then shuts down
	// cleanly: stop claiming, drain or cancel workers, close the registry.
	Run(ctx context.Context) error
}

package secondary

import (
	"context"
	"time"

	"github.com/gridcompute/gridcompute/internal/core/models"
)

// CaseRegistry defines the secondary port for the shared case database.
//
// All state-changing operations are single-record atomic compare-and-sets:
// they return (false, nil) when the record's current state does not match
// the required pre-state (a lost race, not an error). Errors are reserved
// for transport and database failures.
type CaseRegistry interface {
	// NewID returns a fresh time-ordered case identifier.
	NewID() string

	// Insert persists a new case record. Duplicate ids are rejected.
	Insert(ctx context.Context, rec *models.CaseRecord) error

	// Get retrieves a single case record by id.
	Get(ctx context.Context, id string) (*models.CaseRecord, error)

	// FindClaimable returns TO_PROCESS records in scope whose application is
	// in the supported set, in id order.
	FindClaimable(ctx context.Context, userGroup, instance string, applications []string) ([]models.CaseRecord, error)

	// FindProcessing returns PROCESSING records in scope, for the
	// reclamation scan.
	FindProcessing(ctx context.Context, userGroup, instance string) ([]models.CaseRecord, error)

	// FindProcessedBy returns PROCESSED records in scope submitted by the
	// given machine, for the originator's retrieval scan.
	FindProcessedBy(ctx context.Context, userGroup, instance, originMachine string) ([]models.CaseRecord, error)

	// FindByOrigin returns all records in scope submitted by the given
	// identity, newest last, for status projections.
	FindByOrigin(ctx context.Context, userGroup, instance string, origin models.Identity) ([]models.CaseRecord, error)

	// Claim transitions TO_PROCESS -> PROCESSING for claimer, appending it
	// to the attempts history and stamping the first heartbeat.
	Claim(ctx context.Context, id string, claimer models.Identity, now time.Time) (bool, error)

	// Heartbeat refreshes last_heartbeat, provided claimer still holds the case.
	Heartbeat(ctx context.Context, id string, claimer models.Identity, now time.Time) (bool, error)

	// Complete transitions PROCESSING -> PROCESSED, provided claimer still
	// holds the case.
	Complete(ctx context.Context, id string, claimer models.Identity, now time.Time) (bool, error)

	// Reclaim resets PROCESSING -> TO_PROCESS when the heartbeat is older
	// than grace, preserving attempts and clearing the current processor.
	Reclaim(ctx context.Context, id string, now time.Time, grace time.Duration) (bool, error)

	// MarkReceived transitions PROCESSED -> RECEIVED and stamps
	// origin.received_at.
	MarkReceived(ctx context.Context, id string, now time.Time) (bool, error)

	// Delete removes a case record. Originator-only, typically after
	// MarkReceived.
	Delete(ctx context.Context, id string) error

	// QueryVersion looks up a client version in the versions collection.
	// An absent collection or record yields VersionUncontrolled.
	QueryVersion(ctx context.Context, version string) (models.VersionRecord, error)

	// Close releases the underlying database connection.
	Close(ctx context.Context) error
}

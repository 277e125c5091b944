// Package secondary defines the secondary ports (driven adapters) for the
// application. These are the interfaces through which the application drives
// external systems: the shared filesystem, the case database, and the
// per-application adapter executables.
package secondary

import "context"

// CaseArchive defines the secondary port for the shared-filesystem archive.
//
// Paths are canonical relative handles of the form "user/machine/<id>.zip";
// the adapter maps them under its Cases/ and Results/ roots. Put operations
// must be atomic with respect to readers: a bundle appears fully written or
// not at all.
type CaseArchive interface {
	// PutInput writes an input bundle at its canonical path.
	PutInput(ctx context.Context, path string, bundle []byte) error

	// GetInput reads the input bundle at path.
	GetInput(ctx context.Context, path string) ([]byte, error)

	// PutResult writes a result bundle at its canonical path, overwriting
	// any orphaned result a crashed processor left behind.
	PutResult(ctx context.Context, path string, bundle []byte) error

	// GetResult reads the result bundle at path.
	GetResult(ctx context.Context, path string) ([]byte, error)

	// RemoveInput deletes the input bundle at path.
	RemoveInput(ctx context.Context, path string) error

	// RemoveResult deletes the result bundle at path.
	RemoveResult(ctx context.Context, path string) error

	// ScratchDir creates a fresh per-job working directory and returns it.
	ScratchDir(jobID string) (string, error)

	// CleanupScratch removes a scratch directory and everything under it.
	CleanupScratch(dir string) error
}

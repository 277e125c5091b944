package secondary

import "context"

// BundleSpec is one input bundle produced by an adapter's send step:
// an ordered list of absolute file paths to be packaged together.
type BundleSpec struct {
	Files []string
}

// ApplicationAdapter defines the secondary port for one application's
// send/process/receive capability.
type ApplicationAdapter interface {
	// Send turns a user selection into one or more input-bundle specs.
	Send(ctx context.Context, selection []string) ([]BundleSpec, error)

	// Process runs the computation in scratchDir over the materialized
	// input files and returns the produced output paths under scratchDir.
	Process(ctx context.Context, scratchDir string, inputFiles []string) ([]string, error)

	// Receive lands the output files on the originator machine. It must be
	// idempotent: the same outputs may be handed over more than once.
	Receive(ctx context.Context, scratchDir string, outputFiles []string) error
}

// CapabilityIndex defines the secondary port for the machine/application
// capability snapshot. Loaded once at startup; reload is a restart.
type CapabilityIndex interface {
	// SupportedApplications returns the applications this machine may
	// process: its capability-matrix row intersected with the adapters
	// actually present on the shared folder.
	SupportedApplications() map[string]bool

	// Adapter returns the adapter capability for an application id.
	Adapter(application string) (ApplicationAdapter, error)
}

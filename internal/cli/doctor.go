package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridcompute/gridcompute/internal/adapters/capability"
	"github.com/gridcompute/gridcompute/internal/adapters/registry"
	"github.com/gridcompute/gridcompute/internal/adapters/subprocess"
	"github.com/gridcompute/gridcompute/internal/config"
	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
	"github.com/gridcompute/gridcompute/internal/version"
	"github.com/gridcompute/gridcompute/internal/wire"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the GridCompute environment",
		Long: `Comprehensive environment health check.

Validates:
- Pointer file and shared folder reachability
- Settings file completeness
- Capability matrix row for this machine
- Adapter bundles (send/process/receive present)
- Database connectivity and version gate

Examples:
  gridcompute doctor          # Run full health check
  gridcompute doctor --quiet  # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := []CheckResult{}

			cfg, cfgResult := checkConfig()
			results = append(results, cfgResult)
			if cfg != nil {
				results = append(results, checkCapabilities(cfg))
				results = append(results, checkDatabase(cfg)...)
			}

			hasErrors := false
			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				fmt.Println()
				for _, r := range results {
					fmt.Printf("  %s %s\n", r.Status, r.Name)
					if r.Status != "✓" && r.Details != "" {
						fmt.Printf("      %s\n", r.Details)
					}
				}
				fmt.Println()
			}

			if hasErrors {
				return fmt.Errorf("environment has issues")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "exit code only, no output")
	return cmd
}

func checkConfig() (*config.Config, CheckResult) {
	cfg, err := wire.LoadConfig()
	if err != nil {
		return nil, CheckResult{Name: "Shared folder configuration", Status: "✗", Details: err.Error()}
	}
	return cfg, CheckResult{Name: "Shared folder configuration", Status: "✓"}
}

func checkCapabilities(cfg *config.Config) CheckResult {
	idx, err := capability.NewIndex(cfg.SettingsDir(), cfg.Machine, func(application, bundleDir string) secondary.ApplicationAdapter {
		return subprocess.New(application, bundleDir)
	})
	if err != nil {
		return CheckResult{Name: "Capability matrix", Status: "✗", Details: err.Error()}
	}

	supported := idx.SupportedApplications()
	if len(supported) == 0 {
		return CheckResult{
			Name:    "Capability matrix",
			Status:  "⚠",
			Details: fmt.Sprintf("machine %s can process no applications (missing row or incomplete adapter bundles)", cfg.Machine),
		}
	}

	apps := make([]string, 0, len(supported))
	for app := range supported {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return CheckResult{Name: fmt.Sprintf("Capability matrix (%s)", strings.Join(apps, ", ")), Status: "✓"}
}

func checkDatabase(cfg *config.Config) []CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg, err := registry.Connect(ctx, cfg.Settings.MongoServer, cfg.Settings.UserGroup, cfg.Settings.Password)
	if err != nil {
		return []CheckResult{{Name: "Database connectivity", Status: "✗", Details: err.Error()}}
	}
	defer reg.Close(ctx)

	results := []CheckResult{{Name: "Database connectivity", Status: "✓"}}

	gate, err := version.Handshake(ctx, reg)
	switch {
	case err != nil:
		results = append(results, CheckResult{Name: "Version gate", Status: "✗", Details: err.Error()})
	case gate.Status == models.VersionWarning:
		results = append(results, CheckResult{Name: "Version gate", Status: "⚠", Details: gate.Message})
	default:
		results = append(results, CheckResult{Name: "Version gate", Status: "✓"})
	}
	return results
}

// Package wire assembles the GridCompute runtime: it connects the secondary
// adapters to their backing systems and builds the application services over
// them.
package wire

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gridcompute/gridcompute/internal/adapters/archive"
	"github.com/gridcompute/gridcompute/internal/adapters/capability"
	"github.com/gridcompute/gridcompute/internal/adapters/registry"
	"github.com/gridcompute/gridcompute/internal/adapters/subprocess"
	"github.com/gridcompute/gridcompute/internal/app"
	"github.com/gridcompute/gridcompute/internal/config"
	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
	"github.com/gridcompute/gridcompute/internal/workerpool"
)

// Runtime holds the assembled services for one process.
type Runtime struct {
	Config   *config.Config
	Registry secondary.CaseRegistry
	Archive  *archive.FSArchive
	Index    *capability.Index
	Pool     *workerpool.Pool

	Scheduler  *app.SchedulerService
	Submission *app.SubmissionService
	Status     *app.StatusService
	Facade     *app.OrchestrationFacade
}

// LoadConfig resolves configuration from the pointer file next to the
// executable, falling back to the working directory (the common case when
// running from source).
func LoadConfig() (*config.Config, error) {
	dirs := []string{}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}

	var lastErr error
	for _, dir := range dirs {
		cfg, err := config.Load(dir)
		if err == nil {
			return cfg, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Build connects the adapters and assembles the services. The caller owns
// the registry connection's lifetime (close via Runtime.Close).
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := registry.Connect(ctx, cfg.Settings.MongoServer, cfg.Settings.UserGroup, cfg.Settings.Password)
	if err != nil {
		return nil, err
	}

	arch, err := archive.NewFSArchive(cfg.ServerRoot)
	if err != nil {
		_ = reg.Close(ctx)
		return nil, err
	}

	idx, err := capability.NewIndex(cfg.SettingsDir(), cfg.Machine, func(application, bundleDir string) secondary.ApplicationAdapter {
		return subprocess.New(application, bundleDir)
	})
	if err != nil {
		_ = reg.Close(ctx)
		return nil, err
	}

	pool := workerpool.New(arch, idx, cfg.Capacity, logger)
	executor := app.NewEffectExecutor(arch, reg, idx, logger)

	schedCfg := app.SchedulerConfig{
		Identity:          models.Identity{Machine: cfg.Machine, User: cfg.User},
		UserGroup:         cfg.Settings.UserGroup,
		Instance:          cfg.Settings.Instance,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReclaimGrace:      cfg.ReclaimGrace,
		PollInterval:      cfg.PollInterval,
	}

	scheduler := app.NewSchedulerService(reg, arch, idx, pool, executor, schedCfg, logger)
	status := app.NewStatusService(reg, scheduler, schedCfg, logger)
	facade := app.NewOrchestrationFacade(scheduler, status, pool, reg, 0, logger)

	return &Runtime{
		Config:     cfg,
		Registry:   reg,
		Archive:    arch,
		Index:      idx,
		Pool:       pool,
		Scheduler:  scheduler,
		Submission: app.NewSubmissionService(reg, idx, executor, schedCfg, logger),
		Status:     status,
		Facade:     facade,
	}, nil
}

// Close releases the runtime's registry connection. The facade's Run closes
// it itself as part of shutdown; one-shot commands call Close directly.
func (r *Runtime) Close(ctx context.Context) error {
	return r.Registry.Close(ctx)
}

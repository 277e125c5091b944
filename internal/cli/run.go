package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ctxutil"
	"github.com/gridcompute/gridcompute/internal/version"
	"github.com/gridcompute/gridcompute/internal/wire"
)

// RunCmd returns the run command: the long-lived grid participant loop.
func RunCmd() *cobra.Command {
	var (
		capacity  int
		heartbeat time.Duration
		grace     time.Duration
		poll      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Participate in the grid: claim, process, and retrieve cases",
		Long: `Join the grid as a worker and originator.

The process polls the registry for claimable cases matching this machine's
capabilities, processes them under the configured parallelism cap, keeps
claims alive with heartbeats, reclaims stalled claims left by crashed
machines, and pulls back results for cases submitted from this machine.

Stops cleanly on SIGINT/SIGTERM: in-flight jobs get up to 30 seconds to
finish; any still running after that are cancelled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := wire.LoadConfig()
			if err != nil {
				return err
			}
			if capacity > 0 {
				cfg.Capacity = capacity
			}
			if heartbeat > 0 {
				cfg.HeartbeatInterval = heartbeat
			}
			if grace > 0 {
				cfg.ReclaimGrace = grace
			}
			if poll > 0 {
				cfg.PollInterval = poll
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With(
				"machine", cfg.Machine, "instance", cfg.Settings.Instance)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = ctxutil.WithActor(ctx, cfg.Machine+"/"+cfg.User)

			rt, err := wire.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}

			gate, err := version.Handshake(ctx, rt.Registry)
			if err != nil {
				_ = rt.Close(ctx)
				return err
			}
			if gate.Status == models.VersionWarning {
				fmt.Fprintln(os.Stderr, color.New(color.FgYellow).Sprintf("warning: %s", gate.Message))
			}

			fmt.Printf("Logged on grid %q instance %q as %s\n",
				cfg.Settings.UserGroup, cfg.Settings.Instance, cfg.Machine)
			return rt.Facade.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&capacity, "capacity", "n", 0, "max concurrent jobs (default 1)")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 0, "heartbeat interval (default 15s)")
	cmd.Flags().DurationVar(&grace, "grace", 0, "reclamation grace period (default 2m)")
	cmd.Flags().DurationVar(&poll, "poll", 0, "claim poll interval (default 5s)")
	return cmd
}

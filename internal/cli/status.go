package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	cliadapter "github.com/gridcompute/gridcompute/internal/adapters/cli"
	"github.com/gridcompute/gridcompute/internal/version"
	"github.com/gridcompute/gridcompute/internal/wire"
)

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	var processes bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show this user's cases on the grid",
		Long: `List the cases submitted by this user, with the machine currently (or
last) processing each one and the attempt count.

With --processes, also list the jobs running on this machine. A one-shot
invocation has no jobs of its own; the live view belongs to the running
daemon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := wire.LoadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			rt, err := wire.Build(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if _, err := version.Handshake(ctx, rt.Registry); err != nil {
				return err
			}

			adapter := cliadapter.NewStatusAdapter(rt.Status, os.Stdout)
			if err := adapter.RenderMyCases(ctx); err != nil {
				return err
			}
			if processes {
				return adapter.RenderMyProcesses(ctx)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&processes, "processes", false, "also list jobs running on this machine")
	return cmd
}

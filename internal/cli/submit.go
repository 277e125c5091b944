package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridcompute/gridcompute/internal/ports/primary"
	"github.com/gridcompute/gridcompute/internal/version"
	"github.com/gridcompute/gridcompute/internal/wire"
)

// SubmitCmd returns the submit command.
func SubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit [application] [files...]",
		Short: "Submit a case to the grid",
		Long: `Hand a file selection to an application's send step and upload the
resulting input bundles as cases. Each bundle becomes one case, claimable by
any capable machine on the grid.`,
		Args: cobra.MinimumNArgs(2),
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

			resp, err := rt.Submission.Submit(ctx, primary.SubmitRequest{
				Application: args[0],
				Selection:   args[1:],
			})
			if resp != nil {
				for _, id := range resp.CaseIDs {
					fmt.Printf("✓ Submitted case %s (%s)\n", id, args[0])
				}
			}
			return err
		},
	}
	return cmd
}

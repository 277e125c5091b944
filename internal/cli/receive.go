package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridcompute/gridcompute/internal/version"
	"github.com/gridcompute/gridcompute/internal/wire"
)

// ReceiveCmd returns the receive command: a one-shot retrieval pass.
func ReceiveCmd() *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Pull finished results back to this machine",
		Long: `Scan the registry for this machine's PROCESSED cases, pull each result
archive, hand it to the application's receive step, and mark the case
received. The running daemon does this continuously; this command is the
manual equivalent.

With --cleanup, the input and result archives and the case record are
deleted after each successful receive. Retention is otherwise left to the
operator.`,
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

			received, err := rt.Scheduler.RetrieveOnce(ctx, cleanup)
			for _, id := range received {
				fmt.Printf("✓ Received case %s\n", id)
			}
			if err != nil {
				return err
			}
			if len(received) == 0 {
				fmt.Println("No results waiting")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "delete archives and records after receiving")
	return cmd
}

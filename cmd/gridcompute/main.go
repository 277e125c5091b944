package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridcompute/gridcompute/internal/cli"
	"github.com/gridcompute/gridcompute/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "gridcompute",
		Short:   "GridCompute - cooperative distributed computing on a local grid",
		Version: version.String(),
		Long: `GridCompute coordinates case processing across a trusted local grid.
Machines share a filesystem and a case registry; any machine may submit
cases, process other machines' cases while idle, and pull its own results
back when they are done.`,
	}

	// Add subcommands
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.SubmitCmd())
	rootCmd.AddCommand(cli.ReceiveCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.DoctorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

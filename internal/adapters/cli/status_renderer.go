// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// all grid logic to services.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/primary"
)

// StatusAdapter renders status projections for terminal consumption.
type StatusAdapter struct {
	service primary.StatusService
	out     io.Writer
}

// NewStatusAdapter creates a StatusAdapter writing to the given output.
func NewStatusAdapter(service primary.StatusService, out io.Writer) *StatusAdapter {
	return &StatusAdapter{service: service, out: out}
}

// RenderMyCases prints the cases submitted by this identity.
func (a *StatusAdapter) RenderMyCases(ctx context.Context) error {
	cases, err := a.service.MyCases(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cases: %w", err)
	}

	if len(cases) == 0 {
		fmt.Fprintln(a.out, "No cases submitted")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-26s %-12s %-12s %-18s %-9s %s\n", "ID", "APPLICATION", "STATUS", "PROCESSOR", "ATTEMPTS", "SUBMITTED")
	fmt.Fprintln(a.out, "──────────────────────────────────────────────────────────────────────────────────────")
	for _, c := range cases {
		processor := c.CounterpartyMachine
		if processor == "" {
			processor = "-"
		}
		fmt.Fprintf(a.out, "%-26s %-12s %-12s %-18s %-9d %s\n",
			c.ID, c.Application, colorStatus(c.Status), processor, c.Attempts,
			c.SubmittedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(a.out)
	return nil
}

// RenderMyProcesses prints the jobs running on this machine.
func (a *StatusAdapter) RenderMyProcesses(ctx context.Context) error {
	jobs, err := a.service.MyProcesses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list processes: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(a.out, "No jobs running locally")
		return nil
	}

	fmt.Fprintf(a.out, "\n%-26s %-12s %-18s %s\n", "ID", "APPLICATION", "ORIGIN", "STARTED")
	fmt.Fprintln(a.out, "──────────────────────────────────────────────────────")
	for _, j := range jobs {
		started := "-"
		if j.StartedAt != nil {
			started = j.StartedAt.Format("15:04:05")
		}
		fmt.Fprintf(a.out, "%-26s %-12s %-18s %s\n", j.ID, j.Application, j.CounterpartyMachine, started)
	}
	fmt.Fprintln(a.out)
	return nil
}

// colorStatus renders a case status with its conventional color: green once
// the originator has everything back, yellow while the grid is working.
func colorStatus(s models.CaseStatus) string {
	switch s {
	case models.StatusReceived:
		return color.New(color.FgGreen).Sprint(string(s))
	case models.StatusProcessed:
		return color.New(color.FgCyan).Sprint(string(s))
	case models.StatusProcessing:
		return color.New(color.FgYellow).Sprint(string(s))
	default:
		return string(s)
	}
}

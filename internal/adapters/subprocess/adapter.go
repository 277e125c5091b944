// Package subprocess contains the adapter that invokes an application's
// send/process/receive scripts as external executables.
//
// The wire protocol is line-oriented: input paths go to the child's stdin,
// one per line; the child prints produced paths to stdout, one per line.
// Send separates bundles with a blank line. Process isolation gives
// cancellation for free: cancelling the context kills the child.
package subprocess

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gridcompute/gridcompute/internal/core/griderrors"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
)

// Adapter implements secondary.ApplicationAdapter by spawning the scripts of
// one adapter bundle.
type Adapter struct {
	application string
	bundleDir   string
}

var _ secondary.ApplicationAdapter = (*Adapter)(nil)

// New creates an adapter for the bundle at bundleDir.
func New(application, bundleDir string) *Adapter {
	return &Adapter{application: application, bundleDir: bundleDir}
}

// Send runs the bundle's send script over the user selection. Each
// blank-line-separated stdout block is one input-bundle spec.
func (a *Adapter) Send(ctx context.Context, selection []string) ([]secondary.BundleSpec, error) {
	out, err := a.run(ctx, "send", "", selection)
	if err != nil {
		return nil, err
	}

	var specs []secondary.BundleSpec
	var current []string
	flush := func() {
		if len(current) > 0 {
			specs = append(specs, secondary.BundleSpec{Files: current})
			current = nil
		}
	}
	for _, line := range out {
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return specs, nil
}

// Process runs the bundle's process script in scratchDir and returns the
// produced output paths, resolved under scratchDir.
func (a *Adapter) Process(ctx context.Context, scratchDir string, inputFiles []string) ([]string, error) {
	out, err := a.run(ctx, "process", scratchDir, inputFiles)
	if err != nil {
		return nil, err
	}
	outputs := make([]string, 0, len(out))
	for _, line := range out {
		if line == "" {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(scratchDir, line)
		}
		outputs = append(outputs, line)
	}
	return outputs, nil
}

// Receive runs the bundle's receive script in scratchDir over the pulled
// output files. The script owns idempotence; re-runs hand it the same list.
func (a *Adapter) Receive(ctx context.Context, scratchDir string, outputFiles []string) error {
	_, err := a.run(ctx, "receive", scratchDir, outputFiles)
	return err
}

func (a *Adapter) run(ctx context.Context, script, workDir string, stdinLines []string) ([]string, error) {
	cmd := exec.CommandContext(ctx, filepath.Join(a.bundleDir, script))
	if workDir != "" {
		cmd.Dir = workDir
	}
	cmd.Stdin = strings.NewReader(strings.Join(stdinLines, "\n") + "\n")
	// A script's own children can keep the output pipes open after the
	// script is killed; stop waiting for them shortly after cancellation.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, griderrors.New(griderrors.AdapterFailed,
			fmt.Errorf("%s %s failed: %w: %s", a.application, script, err, strings.TrimSpace(stderr.String())))
	}

	var lines []string
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, griderrors.New(griderrors.AdapterFailed,
			fmt.Errorf("%s %s produced unreadable output: %w", a.application, script, err))
	}
	return lines, nil
}

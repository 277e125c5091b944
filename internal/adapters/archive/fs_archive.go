// Package archive contains the shared-filesystem adapter for case and result
// bundles, plus the zip packaging helpers used on both ends of a transfer.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gridcompute/gridcompute/internal/core/griderrors"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
)

const (
	casesDir   = "Cases"
	resultsDir = "Results"
	scratchDir = "gridcompute-scratch"
)

// FSArchive implements secondary.CaseArchive over a shared folder root.
//
// Writes go to a sibling temp name first and are renamed into place, so a
// reader either sees the whole bundle or nothing. Rename is atomic on the
// same filesystem, which the sibling placement guarantees.
type FSArchive struct {
	root        string
	scratchBase string
}

var _ secondary.CaseArchive = (*FSArchive)(nil)

// NewFSArchive creates an archive adapter rooted at the shared folder.
// Scratch directories live under the OS temp dir, not the shared folder.
func NewFSArchive(root string) (*FSArchive, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, griderrors.New(griderrors.ConfigInvalid,
			fmt.Errorf("shared folder root %s is not an accessible directory", root))
	}
	return &FSArchive{
		root:        root,
		scratchBase: filepath.Join(os.TempDir(), scratchDir),
	}, nil
}

// CasePath returns the canonical relative handle for a case's bundles.
func CasePath(user, machine, caseID string) string {
	return filepath.Join(user, machine, caseID+".zip")
}

// PutInput writes an input bundle under Cases/.
func (a *FSArchive) PutInput(ctx context.Context, path string, bundle []byte) error {
	return a.put(filepath.Join(a.root, casesDir, path), bundle)
}

// GetInput reads an input bundle from under Cases/.
func (a *FSArchive) GetInput(ctx context.Context, path string) ([]byte, error) {
	return a.get(filepath.Join(a.root, casesDir, path))
}

// PutResult writes a result bundle under Results/.
func (a *FSArchive) PutResult(ctx context.Context, path string, bundle []byte) error {
	return a.put(filepath.Join(a.root, resultsDir, path), bundle)
}

// GetResult reads a result bundle from under Results/.
func (a *FSArchive) GetResult(ctx context.Context, path string) ([]byte, error) {
	return a.get(filepath.Join(a.root, resultsDir, path))
}

// RemoveInput deletes an input bundle. Missing files are not an error: the
// originator may retry cleanup after a partial earlier pass.
func (a *FSArchive) RemoveInput(ctx context.Context, path string) error {
	return a.remove(filepath.Join(a.root, casesDir, path))
}

// RemoveResult deletes a result bundle.
func (a *FSArchive) RemoveResult(ctx context.Context, path string) error {
	return a.remove(filepath.Join(a.root, resultsDir, path))
}

// ScratchDir creates a fresh per-job working directory.
func (a *FSArchive) ScratchDir(jobID string) (string, error) {
	if err := os.MkdirAll(a.scratchBase, 0o755); err != nil {
		return "", wrapIO(err, "failed to create scratch base")
	}
	dir, err := os.MkdirTemp(a.scratchBase, jobID+"-")
	if err != nil {
		return "", wrapIO(err, "failed to create scratch directory")
	}
	return dir, nil
}

// CleanupScratch removes a scratch directory and everything under it.
func (a *FSArchive) CleanupScratch(dir string) error {
	if dir == "" || !filepath.IsAbs(dir) {
		return griderrors.New(griderrors.PermanentIO,
			fmt.Errorf("refusing to remove scratch directory %q", dir))
	}
	if err := os.RemoveAll(dir); err != nil {
		return wrapIO(err, "failed to remove scratch directory")
	}
	return nil
}

func (a *FSArchive) put(dest string, bundle []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return wrapIO(err, "failed to create archive directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-")
	if err != nil {
		return wrapIO(err, "failed to create temp archive")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(bundle); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return wrapIO(err, "failed to write temp archive")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return wrapIO(err, "failed to close temp archive")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return wrapIO(err, "failed to publish archive")
	}
	return nil
}

func (a *FSArchive) get(src string) ([]byte, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, griderrors.New(griderrors.PermanentIO,
				fmt.Errorf("archive not found: %s", src))
		}
		return nil, wrapIO(err, "failed to read archive")
	}
	return data, nil
}

func (a *FSArchive) remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrapIO(err, "failed to remove archive")
	}
	return nil
}

// wrapIO classifies filesystem errors. Anything the OS might heal on its own
// (a flapping network mount mostly surfaces as generic I/O failure) counts as
// transient; only definitive conditions like permission denial are permanent.
func wrapIO(err error, msg string) error {
	kind := griderrors.TransientIO
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrInvalid) {
		kind = griderrors.PermanentIO
	}
	return griderrors.New(kind, fmt.Errorf("%s: %w", msg, err))
}

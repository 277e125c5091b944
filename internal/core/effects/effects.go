// Package effects defines effect types as data structures representing I/O operations.
// This is the foundation of the Functional Core / Imperative Shell pattern.
// Effects are pure data - they describe what should happen, not how.
package effects

import (
	"time"

	"github.com/gridcompute/gridcompute/internal/core/models"
)

// Effect is the base interface for all effects.
// Effects represent I/O operations as data that can be interpreted by the shell.
type Effect interface {
	// EffectType returns a string identifier for the effect type.
	EffectType() string
}

// LogEffect represents a logging operation.
type LogEffect struct {
	Level   string
	Message string
	Fields  map[string]any
}

func (e LogEffect) EffectType() string { return "log" }

// ArchiveEffect represents a case-archive filesystem operation.
// Put operations carry the full bundle bytes; the executor hands them to the
// CaseArchive port, whose filesystem adapter writes a temp file and renames
// it so readers never observe a partial archive.
type ArchiveEffect struct {
	Operation string // "put_input", "put_result", "remove_input", "remove_result"
	Path      string // canonical relative path, e.g. "user/machine/<id>.zip"
	Bundle    []byte // for put operations
}

func (e ArchiveEffect) EffectType() string { return "archive" }

// RegistryEffect represents a case-registry database operation.
type RegistryEffect struct {
	Operation string // "insert", "complete", "mark_received", "delete"
	Record    *models.CaseRecord
	CaseID    string
	Claimer   models.Identity
	Now       time.Time
}

func (e RegistryEffect) EffectType() string { return "registry" }

// AdapterEffect represents an application-adapter invocation.
type AdapterEffect struct {
	Operation   string // "receive"
	Application string
	ScratchDir  string
	OutputFiles []string
}

func (e AdapterEffect) EffectType() string { return "adapter" }

// CompositeEffect holds multiple effects to be executed in sequence.
// Slice order is execution order; the executor stops at the first failure,
// which is how archive-before-registry ordering is enforced.
type CompositeEffect struct {
	Effects []Effect
}

func (e CompositeEffect) EffectType() string { return "composite" }

// NoEffect represents an operation that produces no side effects.
type NoEffect struct{}

func (e NoEffect) EffectType() string { return "none" }

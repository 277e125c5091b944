// Package caselifecycle contains the pure business logic for the case
// lifecycle. This file contains pure planner functions that generate effects.
//
// The plans encode the one ordering rule the whole protocol rests on: the
// data-bearing archive write always precedes the registry transition that
// advertises it. The executor runs effects in slice order and stops at the
// first failure, so a crash mid-plan leaves the archive written but the
// record unadvanced, never the reverse.
package caselifecycle

import (
	"time"

	"github.com/gridcompute/gridcompute/internal/core/effects"
	"github.com/gridcompute/gridcompute/internal/core/models"
)

// SubmissionPlanInput contains the inputs needed to plan a case submission.
// All values are pre-built by the caller - no I/O in the planner.
type SubmissionPlanInput struct {
	Record *models.CaseRecord
	Bundle []byte // zipped input files
}

// SubmissionPlan represents the planned effects for submitting one case.
type SubmissionPlan struct {
	CaseID      string
	ArchiveOps  []effects.ArchiveEffect
	RegistryOps []effects.RegistryEffect
}

// Effects returns all effects as a flat slice for execution.
// Archive ops come first: the input must exist before the record is visible.
func (p SubmissionPlan) Effects() []effects.Effect {
	result := make([]effects.Effect, 0, len(p.ArchiveOps)+len(p.RegistryOps))
	for _, e := range p.ArchiveOps {
		result = append(result, e)
	}
	for _, e := range p.RegistryOps {
		result = append(result, e)
	}
	return result
}

// GenerateSubmissionPlan creates a plan for submitting a case.
// This is a pure function - all input data must be pre-built.
func GenerateSubmissionPlan(input SubmissionPlanInput) SubmissionPlan {
	return SubmissionPlan{
		CaseID: input.Record.ID,
		ArchiveOps: []effects.ArchiveEffect{{
			Operation: "put_input",
			Path:      input.Record.Path,
			Bundle:    input.Bundle,
		}},
		RegistryOps: []effects.RegistryEffect{{
			Operation: "insert",
			Record:    input.Record,
		}},
	}
}

// CompletionPlanInput contains the inputs needed to plan a case completion.
type CompletionPlanInput struct {
	CaseID  string
	Path    string // canonical relative path, shared by input and result
	Claimer models.Identity
	Now     time.Time
	Bundle  []byte // zipped output files (may be an empty archive)
}

// CompletionPlan represents the planned effects for completing one case.
type CompletionPlan struct {
	CaseID      string
	ArchiveOps  []effects.ArchiveEffect
	RegistryOps []effects.RegistryEffect
}

// Effects returns all effects as a flat slice for execution.
// The result upload precedes the status transition.
func (p CompletionPlan) Effects() []effects.Effect {
	result := make([]effects.Effect, 0, len(p.ArchiveOps)+len(p.RegistryOps))
	for _, e := range p.ArchiveOps {
		result = append(result, e)
	}
	for _, e := range p.RegistryOps {
		result = append(result, e)
	}
	return result
}

// GenerateCompletionPlan creates a plan for publishing a finished job.
func GenerateCompletionPlan(input CompletionPlanInput) CompletionPlan {
	return CompletionPlan{
		CaseID: input.CaseID,
		ArchiveOps: []effects.ArchiveEffect{{
			Operation: "put_result",
			Path:      input.Path,
			Bundle:    input.Bundle,
		}},
		RegistryOps: []effects.RegistryEffect{{
			Operation: "complete",
			CaseID:    input.CaseID,
			Claimer:   input.Claimer,
			Now:       input.Now,
		}},
	}
}

// ReceivePlanInput contains the inputs needed to plan a result retrieval.
// The result archive has already been pulled and unpacked into ScratchDir
// by the caller; the plan covers the adapter hand-off and the bookkeeping.
type ReceivePlanInput struct {
	Record      *models.CaseRecord
	ScratchDir  string
	OutputFiles []string
	Now         time.Time
	Cleanup     bool // also delete the archives and the record
}

// ReceivePlan represents the planned effects for receiving one result.
type ReceivePlan struct {
	CaseID      string
	AdapterOps  []effects.AdapterEffect
	RegistryOps []effects.RegistryEffect
	CleanupOps  []effects.Effect
}

// Effects returns all effects as a flat slice for execution.
// The adapter runs first so a failing receive leaves the case PROCESSED and
// retryable; cleanup comes last so nothing is deleted before the record says
// RECEIVED.
func (p ReceivePlan) Effects() []effects.Effect {
	result := make([]effects.Effect, 0, len(p.AdapterOps)+len(p.RegistryOps)+len(p.CleanupOps))
	for _, e := range p.AdapterOps {
		result = append(result, e)
	}
	for _, e := range p.RegistryOps {
		result = append(result, e)
	}
	result = append(result, p.CleanupOps...)
	return result
}

// GenerateReceivePlan creates a plan for handing a pulled result to the
// originator's adapter and marking the case received.
func GenerateReceivePlan(input ReceivePlanInput) ReceivePlan {
	plan := ReceivePlan{
		CaseID: input.Record.ID,
		AdapterOps: []effects.AdapterEffect{{
			Operation:   "receive",
			Application: input.Record.Application,
			ScratchDir:  input.ScratchDir,
			OutputFiles: input.OutputFiles,
		}},
		RegistryOps: []effects.RegistryEffect{{
			Operation: "mark_received",
			CaseID:    input.Record.ID,
			Now:       input.Now,
		}},
	}

	if input.Cleanup {
		plan.CleanupOps = append(plan.CleanupOps,
			effects.ArchiveEffect{Operation: "remove_input", Path: input.Record.Path},
			effects.ArchiveEffect{Operation: "remove_result", Path: input.Record.Path},
			effects.RegistryEffect{Operation: "delete", CaseID: input.Record.ID},
		)
	}

	return plan
}

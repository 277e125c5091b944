package caselifecycle

import (
	"testing"
	"time"

	"github.com/gridcompute/gridcompute/internal/core/effects"
	"github.com/gridcompute/gridcompute/internal/core/models"
)

func TestSubmissionPlanOrdersArchiveBeforeRegistry(t *testing.T) {
	rec := testRecord(models.StatusToProcess)
	rec.Path = "alice/origin-machine/case-1.zip"

	plan := GenerateSubmissionPlan(SubmissionPlanInput{Record: rec, Bundle: []byte("zip")})
	effs := plan.Effects()

	if len(effs) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(effs))
	}
	put, ok := effs[0].(effects.ArchiveEffect)
	if !ok || put.Operation != "put_input" || put.Path != rec.Path {
		t.Errorf("first effect should upload the input, got %+v", effs[0])
	}
	ins, ok := effs[1].(effects.RegistryEffect)
	if !ok || ins.Operation != "insert" || ins.Record != rec {
		t.Errorf("second effect should insert the record, got %+v", effs[1])
	}
}

func TestCompletionPlanOrdersResultBeforeTransition(t *testing.T) {
	now := time.Now().UTC()
	claimer := models.Identity{Machine: "worker-1", User: "bob"}

	plan := GenerateCompletionPlan(CompletionPlanInput{
		CaseID:  "case-1",
		Path:    "alice/origin-machine/case-1.zip",
		Claimer: claimer,
		Now:     now,
		Bundle:  []byte("results"),
	})
	effs := plan.Effects()

	if len(effs) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(effs))
	}
	put, ok := effs[0].(effects.ArchiveEffect)
	if !ok || put.Operation != "put_result" {
		t.Errorf("first effect should upload the result, got %+v", effs[0])
	}
	complete, ok := effs[1].(effects.RegistryEffect)
	if !ok || complete.Operation != "complete" || complete.Claimer != claimer || !complete.Now.Equal(now) {
		t.Errorf("second effect should complete the case, got %+v", effs[1])
	}
}

func TestReceivePlanWithoutCleanup(t *testing.T) {
	rec := testRecord(models.StatusProcessed)
	plan := GenerateReceivePlan(ReceivePlanInput{
		Record:      rec,
		ScratchDir:  "/tmp/scratch",
		OutputFiles: []string{"/tmp/scratch/out.dat"},
		Now:         time.Now().UTC(),
	})
	effs := plan.Effects()

	if len(effs) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(effs))
	}
	recv, ok := effs[0].(effects.AdapterEffect)
	if !ok || recv.Operation != "receive" || recv.Application != rec.Application {
		t.Errorf("first effect should run receive, got %+v", effs[0])
	}
	mark, ok := effs[1].(effects.RegistryEffect)
	if !ok || mark.Operation != "mark_received" {
		t.Errorf("second effect should mark received, got %+v", effs[1])
	}
}

func TestReceivePlanWithCleanupDeletesLast(t *testing.T) {
	rec := testRecord(models.StatusProcessed)
	rec.Path = "alice/origin-machine/case-1.zip"

	plan := GenerateReceivePlan(ReceivePlanInput{
		Record:  rec,
		Now:     time.Now().UTC(),
		Cleanup: true,
	})
	effs := plan.Effects()

	if len(effs) != 5 {
		t.Fatalf("expected 5 effects, got %d", len(effs))
	}
	// receive, mark_received, then cleanup: both archives, record last.
	if e, ok := effs[2].(effects.ArchiveEffect); !ok || e.Operation != "remove_input" {
		t.Errorf("effect 2 should remove the input, got %+v", effs[2])
	}
	if e, ok := effs[3].(effects.ArchiveEffect); !ok || e.Operation != "remove_result" {
		t.Errorf("effect 3 should remove the result, got %+v", effs[3])
	}
	if e, ok := effs[4].(effects.RegistryEffect); !ok || e.Operation != "delete" {
		t.Errorf("record deletion must come after archive removal, got %+v", effs[4])
	}
}

package storage

import (
	"context"
	"testing"

	"palisade/internal/model"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return store
}

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := model.RunRecord{
		VersionedRecord: Stamp(),
		RunID:           "run-1",
		Mode:            "pbt",
		EnvKind:         "matrix",
		Scenario:        "rps",
		Opponents:       4,
		TimestepsMain:   1000,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("GetRun: ok=%t err=%v", ok, err)
	}
	if got.Scenario != "rps" || got.Opponents != 4 {
		t.Fatalf("run = %+v", got)
	}

	if _, ok, err := store.GetRun(ctx, "ghost"); err != nil || ok {
		t.Fatalf("missing run: ok=%t err=%v", ok, err)
	}
}

func TestMemoryStoreSaveRunUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := model.RunRecord{VersionedRecord: Stamp(), RunID: "run-1", Iterations: 1}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	run.Iterations = 2
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Iterations != 2 {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestMemoryStoreListRunsSorted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if err := store.SaveRun(ctx, model.RunRecord{VersionedRecord: Stamp(), RunID: id}); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].RunID != "a" || runs[2].RunID != "c" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestMemoryStoreCheckpointsSortedByVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, version := range []int{3, 1, 2} {
		checkpoint := model.CheckpointRecord{
			VersionedRecord: Stamp(),
			RunID:           "run-1",
			Version:         version,
		}
		if err := store.SaveCheckpoint(ctx, checkpoint); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
	}

	checkpoints, err := store.ListCheckpoints(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(checkpoints) != 3 {
		t.Fatalf("checkpoints = %d", len(checkpoints))
	}
	for i, c := range checkpoints {
		if c.Version != i+1 {
			t.Fatalf("checkpoint %d has version %d", i, c.Version)
		}
	}

	other, err := store.ListCheckpoints(ctx, "other-run")
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("unexpected checkpoints for other run: %v", other)
	}
}

func TestMemoryStoreJobOutcomes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	outcome := model.JobOutcome{
		VersionedRecord: Stamp(),
		JobID:           "job-1",
		Kind:            "training",
		Status:          model.JobStatusSucceeded,
	}
	if err := store.SaveJobOutcome(ctx, outcome); err != nil {
		t.Fatalf("SaveJobOutcome: %v", err)
	}
	outcome.Status = model.JobStatusFailed
	if err := store.SaveJobOutcome(ctx, outcome); err != nil {
		t.Fatalf("SaveJobOutcome: %v", err)
	}

	outcomes, err := store.ListJobOutcomes(ctx)
	if err != nil {
		t.Fatalf("ListJobOutcomes: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != model.JobStatusFailed {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestMemoryStoreReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.SaveRun(ctx, model.RunRecord{VersionedRecord: Stamp(), RunID: "run-1"}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("runs survived reset: %+v", runs)
	}
}

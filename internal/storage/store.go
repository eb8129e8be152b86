package storage

import (
	"context"

	"palisade/internal/model"
)

// Store defines persistence for run metadata, checkpoint indexes and pool job
// outcomes.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveCheckpoint(ctx context.Context, checkpoint model.CheckpointRecord) error
	ListCheckpoints(ctx context.Context, runID string) ([]model.CheckpointRecord, error)
	SaveJobOutcome(ctx context.Context, outcome model.JobOutcome) error
	ListJobOutcomes(ctx context.Context) ([]model.JobOutcome, error)
}

// Resetter is an optional capability for wiping a store between experiments.
type Resetter interface {
	Reset(ctx context.Context) error
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}

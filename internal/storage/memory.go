package storage

import (
	"context"
	"sort"
	"sync"

	"palisade/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	checkpoints map[string][]model.CheckpointRecord
	outcomes    []model.JobOutcome
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.checkpoints = make(map[string][]model.CheckpointRecord)
	s.outcomes = nil
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	return s.Init(ctx)
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out, nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, checkpoint model.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.checkpoints[checkpoint.RunID]
	for i, item := range existing {
		if item.Version == checkpoint.Version {
			existing[i] = checkpoint
			return nil
		}
	}
	s.checkpoints[checkpoint.RunID] = append(existing, checkpoint)
	return nil
}

func (s *MemoryStore) ListCheckpoints(_ context.Context, runID string) ([]model.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]model.CheckpointRecord(nil), s.checkpoints[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryStore) SaveJobOutcome(_ context.Context, outcome model.JobOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.outcomes {
		if item.JobID == outcome.JobID {
			s.outcomes[i] = outcome
			return nil
		}
	}
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

func (s *MemoryStore) ListJobOutcomes(_ context.Context) ([]model.JobOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.JobOutcome(nil), s.outcomes...), nil
}

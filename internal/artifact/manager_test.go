package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"palisade/internal/population"
	"palisade/internal/storage"
)

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager("", "run-1", nil); err == nil {
		t.Fatal("expected error for empty root")
	}
	if _, err := NewManager(t.TempDir(), "", nil); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestSaveNewCheckpointVersionsAndIndexes(t *testing.T) {
	root := t.TempDir()
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("store init: %v", err)
	}
	manager, err := NewManager(root, "run-1", store)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	snapshot := Snapshot{"main": {"w": {1, 2}}}
	ref1, err := manager.SaveNewCheckpoint(context.Background(), snapshot, 1000)
	if err != nil {
		t.Fatalf("SaveNewCheckpoint: %v", err)
	}
	if ref1 != "run-1:v1" {
		t.Fatalf("ref = %s", ref1)
	}
	ref2, err := manager.SaveNewCheckpoint(context.Background(), snapshot, 2000)
	if err != nil {
		t.Fatalf("SaveNewCheckpoint: %v", err)
	}
	if ref2 != "run-1:v2" {
		t.Fatalf("ref = %s", ref2)
	}
	if manager.Saved() != 2 {
		t.Fatalf("saved = %d", manager.Saved())
	}

	for _, version := range []string{"checkpoint_1.json", "checkpoint_2.json"} {
		if _, err := os.Stat(filepath.Join(root, "run-1", version)); err != nil {
			t.Fatalf("checkpoint file missing: %v", err)
		}
	}

	records, err := store.ListCheckpoints(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("indexed %d checkpoints", len(records))
	}
	if records[1].TimestepMain != 2000 {
		t.Fatalf("checkpoint record = %+v", records[1])
	}
}

func TestGetRemoteCheckpointResolvesVersions(t *testing.T) {
	root := t.TempDir()
	manager, err := NewManager(root, "run-1", nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	snapshot := Snapshot{"main": {"w": {1}}}
	for i := 0; i < 3; i++ {
		if _, err := manager.SaveNewCheckpoint(context.Background(), snapshot, int64(i)); err != nil {
			t.Fatalf("SaveNewCheckpoint: %v", err)
		}
	}

	path, err := GetRemoteCheckpoint(root, "run-1:v2")
	if err != nil {
		t.Fatalf("GetRemoteCheckpoint: %v", err)
	}
	if filepath.Base(path) != "checkpoint_2.json" {
		t.Fatalf("resolved %s", path)
	}

	latest, err := GetRemoteCheckpoint(root, "run-1:latest")
	if err != nil {
		t.Fatalf("GetRemoteCheckpoint: %v", err)
	}
	if filepath.Base(latest) != "checkpoint_3.json" {
		t.Fatalf("latest resolved %s", latest)
	}
}

func TestGetRemoteCheckpointErrors(t *testing.T) {
	root := t.TempDir()
	if _, err := GetRemoteCheckpoint(root, "ghost:v1"); err == nil {
		t.Fatal("expected error for missing artifact")
	}
	if _, err := GetRemoteCheckpoint(root, "ghost:latest"); err == nil {
		t.Fatal("expected error for missing run directory")
	}
	for _, ref := range []string{"", "run-1", "run-1:", ":v1", "run-1:x2", "run-1:v0"} {
		if _, err := GetRemoteCheckpoint(root, ref); err == nil {
			t.Fatalf("expected error for malformed reference %q", ref)
		}
	}

	// A run directory without checkpoint files has no latest.
	if err := os.MkdirAll(filepath.Join(root, "empty-run"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := GetRemoteCheckpoint(root, "empty-run:latest"); err == nil {
		t.Fatal("expected error for empty run directory")
	}
}

func TestLoadSavedWeights(t *testing.T) {
	root := t.TempDir()
	manager, err := NewManager(root, "run-1", nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	want := population.Weights{"w": {1, 2, 3}}
	if _, err := manager.SaveNewCheckpoint(context.Background(), Snapshot{"policy_1": want}, 0); err != nil {
		t.Fatalf("SaveNewCheckpoint: %v", err)
	}

	path, err := GetRemoteCheckpoint(root, "run-1:latest")
	if err != nil {
		t.Fatalf("GetRemoteCheckpoint: %v", err)
	}
	weights, err := LoadSavedWeights(path, "policy_1")
	if err != nil {
		t.Fatalf("LoadSavedWeights: %v", err)
	}
	if !weights.Equal(want) {
		t.Fatalf("weights = %v", weights)
	}
	if _, err := LoadSavedWeights(path, "ghost"); err == nil {
		t.Fatal("expected error for absent policy")
	}
}

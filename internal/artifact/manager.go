// Package artifact persists versioned checkpoint artifacts for runs and
// resolves versioned references back to local files.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"palisade/internal/model"
	"palisade/internal/population"
	"palisade/internal/storage"
)

// Snapshot is the on-disk checkpoint payload: every policy's weights at save
// time.
type Snapshot map[string]population.Weights

// Manager writes checkpoints for one run under <root>/<run-id>/ and indexes
// them in the store. References have the form "<run-id>:v<N>" or
// "<run-id>:latest".
type Manager struct {
	root  string
	runID string
	store storage.Store

	saved int
}

func NewManager(root, runID string, store storage.Store) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(filepath.Join(root, runID), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Manager{root: root, runID: runID, store: store}, nil
}

func (m *Manager) RunID() string { return m.runID }

// SaveNewCheckpoint writes the next checkpoint version and records it.
func (m *Manager) SaveNewCheckpoint(ctx context.Context, snapshot Snapshot, timestepMain int64) (string, error) {
	version := m.saved + 1
	path := checkpointPath(m.root, m.runID, version)
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	m.saved = version

	if m.store != nil {
		record := model.CheckpointRecord{
			VersionedRecord: storage.Stamp(),
			RunID:           m.runID,
			Version:         version,
			Path:            path,
			TimestepMain:    timestepMain,
			SavedAtUTC:      model.UTCNow(),
		}
		if err := m.store.SaveCheckpoint(ctx, record); err != nil {
			return "", fmt.Errorf("index checkpoint: %w", err)
		}
	}
	return fmt.Sprintf("%s:v%d", m.runID, version), nil
}

// Saved reports how many checkpoint versions this manager has written.
func (m *Manager) Saved() int { return m.saved }

// GetRemoteCheckpoint resolves a versioned reference to a local file path.
// ":latest" resolves to the highest version present on disk.
func GetRemoteCheckpoint(root, ref string) (string, error) {
	runID, version, err := parseRef(ref)
	if err != nil {
		return "", err
	}
	if version > 0 {
		path := checkpointPath(root, runID, version)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("artifact %s not found: %w", ref, err)
		}
		return path, nil
	}

	entries, err := os.ReadDir(filepath.Join(root, runID))
	if err != nil {
		return "", fmt.Errorf("artifact %s not found: %w", ref, err)
	}
	best := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "checkpoint_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint_"), ".json"))
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best == 0 {
		return "", fmt.Errorf("artifact %s has no checkpoints", ref)
	}
	return checkpointPath(root, runID, best), nil
}

// LoadSavedWeights reads one policy's weights out of a checkpoint file.
func LoadSavedWeights(path, policy string) (population.Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	weights, ok := snapshot[policy]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s has no policy %s", path, policy)
	}
	return weights, nil
}

func checkpointPath(root, runID string, version int) string {
	return filepath.Join(root, runID, fmt.Sprintf("checkpoint_%d.json", version))
}

func parseRef(ref string) (runID string, version int, err error) {
	idx := strings.LastIndex(ref, ":")
	if idx <= 0 || idx == len(ref)-1 {
		return "", 0, fmt.Errorf("malformed artifact reference: %q", ref)
	}
	runID = ref[:idx]
	suffix := ref[idx+1:]
	if suffix == "latest" {
		return runID, 0, nil
	}
	if !strings.HasPrefix(suffix, "v") {
		return "", 0, fmt.Errorf("malformed artifact reference: %q", ref)
	}
	version, err = strconv.Atoi(suffix[1:])
	if err != nil || version < 1 {
		return "", 0, fmt.Errorf("malformed artifact reference: %q", ref)
	}
	return runID, version, nil
}

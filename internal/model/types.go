package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord is the persisted summary of a single PBT training run.
type RunRecord struct {
	VersionedRecord
	RunID           string `json:"run_id"`
	Mode            string `json:"mode"`
	EnvKind         string `json:"env_kind"`
	Scenario        string `json:"scenario"`
	MainAgentID     int    `json:"main_agent_id"`
	MainPolicy      string `json:"main_policy"`
	Opponents       int    `json:"opponents"`
	TimestepsMain   int64  `json:"timesteps_main"`
	TimestepsTotal  int64  `json:"timesteps_total"`
	Iterations      int    `json:"iterations"`
	Checkpoints     int    `json:"checkpoints"`
	EvalGenerations int    `json:"eval_generations"`
	StartedAtUTC    string `json:"started_at_utc"`
	FinishedAtUTC   string `json:"finished_at_utc,omitempty"`
}

// CheckpointRecord indexes one saved checkpoint version of a run.
type CheckpointRecord struct {
	VersionedRecord
	RunID        string `json:"run_id"`
	Version      int    `json:"version"`
	Path         string `json:"path"`
	TimestepMain int64  `json:"timestep_main"`
	SavedAtUTC   string `json:"saved_at_utc"`
}

// JobStatus is the terminal state of a pool job. A slot is only treated as
// succeeded after an explicit exit-status check.
type JobStatus string

const (
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusKilled    JobStatus = "killed"
)

// JobOutcome is the persisted terminal record of one pool job.
type JobOutcome struct {
	VersionedRecord
	JobID         string    `json:"job_id"`
	Kind          string    `json:"kind"`
	Status        JobStatus `json:"status"`
	RunID         string    `json:"run_id,omitempty"`
	MainPolicy    string    `json:"main_policy,omitempty"`
	VictimRef     string    `json:"victim_ref,omitempty"`
	Error         string    `json:"error,omitempty"`
	FinishedAtUTC string    `json:"finished_at_utc"`
}

func UTCNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

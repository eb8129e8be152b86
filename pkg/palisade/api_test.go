package palisade

import (
	"context"
	"testing"
	"time"

	"palisade/internal/jobpool"
	"palisade/internal/model"
	"palisade/internal/storage"
)

func TestRunPBTEndToEnd(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("store init: %v", err)
	}

	summary, err := RunPBT(context.Background(), PBTRequest{
		EnvKind:               "matrix",
		Scenario:              "rps",
		NumOpponents:          3,
		CheckpointInterval:    2000,
		MaxTimesteps:          2000,
		NumWorkers:            2,
		TimestepsPerIteration: 500,
		Horizon:               10,
		Seed:                  1,
		ArtifactRoot:          t.TempDir(),
		Store:                 store,
	})
	if err != nil {
		t.Fatalf("RunPBT: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("no run id assigned")
	}
	if summary.TimestepsMain < 2000 {
		t.Fatalf("main timesteps = %d", summary.TimestepsMain)
	}
	if summary.Opponents != 3 {
		t.Fatalf("opponents = %d", summary.Opponents)
	}
	if summary.Checkpoints < 1 {
		t.Fatal("no checkpoint saved")
	}

	record, ok, err := store.GetRun(context.Background(), summary.RunID)
	if err != nil || !ok {
		t.Fatalf("run record missing: ok=%t err=%v", ok, err)
	}
	if record.MainPolicy != summary.MainPolicy {
		t.Fatalf("record = %+v", record)
	}
}

func TestRunPBTRejectsUnknownEnvironment(t *testing.T) {
	_, err := RunPBT(context.Background(), PBTRequest{
		EnvKind:      "tabular",
		ArtifactRoot: t.TempDir(),
		MaxTimesteps: 100,
	})
	if err == nil {
		t.Fatal("expected error for unknown environment kind")
	}
}

func TestRunAttackAgainstSavedVictim(t *testing.T) {
	root := t.TempDir()
	// Produce a victim artifact through a short training run first.
	trained, err := RunPBT(context.Background(), PBTRequest{
		NumOpponents:          2,
		CheckpointInterval:    1000,
		MaxTimesteps:          1000,
		NumWorkers:            1,
		TimestepsPerIteration: 500,
		Horizon:               10,
		Seed:                  1,
		ArtifactRoot:          root,
	})
	if err != nil {
		t.Fatalf("RunPBT: %v", err)
	}

	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("store init: %v", err)
	}

	summary, err := RunAttack(context.Background(), AttackRequest{
		AttackerAgentID: 1,
		VictimPolicy:    trained.MainPolicy,
		VictimArtifact:  trained.RunID + ":latest",
		Iterations:      3,
		Horizon:         10,
		Seed:            2,
		ArtifactRoot:    root,
		Store:           store,
	})
	if err != nil {
		t.Fatalf("RunAttack: %v", err)
	}
	if summary.AttackerPolicy == "" || summary.VictimPolicy != trained.MainPolicy {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Iterations != 3 {
		t.Fatalf("iterations = %d", summary.Iterations)
	}

	record, ok, err := store.GetRun(context.Background(), summary.RunID)
	if err != nil || !ok {
		t.Fatalf("attack run record missing: ok=%t err=%v", ok, err)
	}
	if record.Mode != "attack" || record.MainPolicy != summary.AttackerPolicy {
		t.Fatalf("record = %+v", record)
	}
	if record.Iterations != 3 || record.MainAgentID != 1 {
		t.Fatalf("record = %+v", record)
	}
}

func TestRunAttackValidation(t *testing.T) {
	if _, err := RunAttack(context.Background(), AttackRequest{VictimArtifact: "r:latest"}); err == nil {
		t.Fatal("expected error for missing victim policy")
	}
	if _, err := RunAttack(context.Background(), AttackRequest{VictimPolicy: "main"}); err == nil {
		t.Fatal("expected error for missing victim artifact")
	}
	_, err := RunAttack(context.Background(), AttackRequest{
		VictimPolicy:   "main",
		VictimArtifact: "ghost:latest",
		ArtifactRoot:   t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for unresolvable artifact")
	}
}

type instantRunner struct{}

func (instantRunner) Start(_ context.Context, job jobpool.Job) (jobpool.Handle, error) {
	return instantHandle{job: job}, nil
}

type instantHandle struct{ job jobpool.Job }

func (instantHandle) Done() bool              { return true }
func (instantHandle) Status() model.JobStatus { return model.JobStatusSucceeded }
func (instantHandle) Err() error              { return nil }
func (instantHandle) Kill() error             { return nil }

func (h instantHandle) Result() (jobpool.TrainingOutcome, error) {
	return jobpool.TrainingOutcome{RunID: "run-" + h.job.ID, MainPolicy: "main"}, nil
}

func TestRunTrainAttackCrossProduct(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("store init: %v", err)
	}

	stats, err := RunTrainAttack(context.Background(), TrainAttackRequest{
		Agents:       []int{0, 1},
		NumOpsList:   []int{2, 4},
		NumTraining:  2,
		NumAttacks:   1,
		NumProcesses: 2,
		PollInterval: time.Millisecond,
		Runner:       instantRunner{},
		Store:        store,
	})
	if err != nil {
		t.Fatalf("RunTrainAttack: %v", err)
	}
	// 2 repetitions x 2 agents x 2 opponent counts = 8 training jobs, each
	// fanning out 1 attack.
	if stats.Started != 16 || stats.Succeeded != 16 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Attacks != 8 {
		t.Fatalf("attacks = %d", stats.Attacks)
	}

	outcomes, err := store.ListJobOutcomes(context.Background())
	if err != nil {
		t.Fatalf("ListJobOutcomes: %v", err)
	}
	if len(outcomes) != 16 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
}

func TestRunTrainAttackValidation(t *testing.T) {
	if _, err := RunTrainAttack(context.Background(), TrainAttackRequest{
		NumTraining:  1,
		NumProcesses: 1,
		Runner:       instantRunner{},
	}); err == nil {
		t.Fatal("expected error for empty opponent count list")
	}
	if _, err := RunTrainAttack(context.Background(), TrainAttackRequest{
		NumOpsList:   []int{2},
		NumProcesses: 1,
		Runner:       instantRunner{},
	}); err == nil {
		t.Fatal("expected error for zero training repetitions")
	}
	if _, err := RunTrainAttack(context.Background(), TrainAttackRequest{
		NumOpsList:  []int{2},
		NumTraining: 1,
		Runner:      instantRunner{},
	}); err == nil {
		t.Fatal("expected error for zero process slots")
	}
}

// Package palisade is the public facade over the adversarial-PBT experiment
// driver: single PBT runs, single attack runs, and multi-job train-and-attack
// campaigns.
package palisade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"palisade/internal/artifact"
	"palisade/internal/assign"
	"palisade/internal/envspace"
	"palisade/internal/jobpool"
	"palisade/internal/model"
	"palisade/internal/pbt"
	"palisade/internal/storage"
	"palisade/internal/trainer"
)

// PBTRequest configures one population-based training run.
type PBTRequest struct {
	RunID    string
	EnvKind  string
	Scenario string

	MainAgentID        int
	NumOpponents       int
	ExperienceFactor   float64
	GrowthInterval     int64
	MaxOpponents       int
	CheckpointInterval int64
	EvalInterval       int64
	MaxTimesteps       int64
	LimitPolicyCache   bool

	NumWorkers            int
	TimestepsPerIteration int64
	EpisodesPerWorker     int
	Horizon               int
	Seed                  int64

	BaselineArtifacts []string
	BaselinePolicy    string
	ArtifactRoot      string

	Store storage.Store
	Log   func(format string, args ...any)
}

func (req *PBTRequest) applyDefaults() {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.EnvKind == "" {
		req.EnvKind = "matrix"
	}
	if req.Scenario == "" {
		req.Scenario = "rps"
	}
	if req.NumOpponents == 0 {
		req.NumOpponents = 10
	}
	if req.ExperienceFactor == 0 {
		req.ExperienceFactor = 1.0
	}
	if req.GrowthInterval == 0 {
		req.GrowthInterval = -1
	}
	if req.CheckpointInterval == 0 {
		req.CheckpointInterval = 10000
	}
	if req.EvalInterval == 0 {
		req.EvalInterval = 1
	}
	if req.MaxTimesteps == 0 {
		req.MaxTimesteps = 100000
	}
	if req.NumWorkers == 0 {
		req.NumWorkers = 2
	}
	if req.Horizon == 0 {
		req.Horizon = 25
	}
	if req.ArtifactRoot == "" {
		req.ArtifactRoot = "artifacts"
	}
}

// RunPBT wires the environment, trainer, artifact manager and store into a
// training loop and runs it to completion.
func RunPBT(ctx context.Context, req PBTRequest) (pbt.Summary, error) {
	req.applyDefaults()

	env, err := envspace.New(req.EnvKind, req.Scenario)
	if err != nil {
		return pbt.Summary{}, err
	}
	sim, err := trainer.NewSim(trainer.SimConfig{
		Env:                   env,
		NumWorkers:            req.NumWorkers,
		TimestepsPerIteration: req.TimestepsPerIteration,
		EpisodesPerWorker:     req.EpisodesPerWorker,
		Horizon:               req.Horizon,
		Seed:                  req.Seed,
	})
	if err != nil {
		return pbt.Summary{}, err
	}
	artifacts, err := artifact.NewManager(req.ArtifactRoot, req.RunID, req.Store)
	if err != nil {
		return pbt.Summary{}, err
	}

	manager, err := pbt.New(pbt.Config{
		Trainer:            sim,
		Env:                env,
		Artifacts:          artifacts,
		Store:              req.Store,
		Log:                req.Log,
		MainAgentID:        req.MainAgentID,
		NumOpponents:       req.NumOpponents,
		ExperienceFactor:   req.ExperienceFactor,
		GrowthInterval:     req.GrowthInterval,
		MaxOpponents:       req.MaxOpponents,
		CheckpointInterval: req.CheckpointInterval,
		EvalInterval:       req.EvalInterval,
		MaxTimesteps:       req.MaxTimesteps,
		LimitPolicyCache:   req.LimitPolicyCache,
		BaselineArtifacts:  req.BaselineArtifacts,
		BaselinePolicy:     req.BaselinePolicy,
		ArtifactRoot:       req.ArtifactRoot,
		EnvKind:            req.EnvKind,
		Scenario:           req.Scenario,
	})
	if err != nil {
		return pbt.Summary{}, err
	}
	return manager.Run(ctx)
}

// AttackRequest configures one adversarial-attack run against a frozen
// victim policy loaded from a saved artifact.
type AttackRequest struct {
	RunID    string
	EnvKind  string
	Scenario string

	AttackerAgentID int
	VictimPolicy    string
	VictimArtifact  string
	Iterations      int

	NumWorkers            int
	TimestepsPerIteration int64
	EpisodesPerWorker     int
	Horizon               int
	Seed                  int64

	ArtifactRoot string
	Store        storage.Store
	Log          func(format string, args ...any)
}

// AttackSummary is the terminal outcome of one attack run.
type AttackSummary struct {
	RunID          string
	AttackerPolicy string
	VictimPolicy   string
	Iterations     int
}

// RunAttack trains a fresh attacker policy against the frozen victim policy
// restored from the referenced artifact.
func RunAttack(ctx context.Context, req AttackRequest) (AttackSummary, error) {
	if req.VictimPolicy == "" {
		return AttackSummary{}, fmt.Errorf("victim policy is required")
	}
	if req.VictimArtifact == "" {
		return AttackSummary{}, fmt.Errorf("victim artifact is required")
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.EnvKind == "" {
		req.EnvKind = "matrix"
	}
	if req.Scenario == "" {
		req.Scenario = "rps"
	}
	if req.Iterations <= 0 {
		req.Iterations = 10
	}
	if req.NumWorkers <= 0 {
		req.NumWorkers = 1
	}
	if req.Horizon == 0 {
		req.Horizon = 25
	}
	if req.ArtifactRoot == "" {
		req.ArtifactRoot = "artifacts"
	}
	log := req.Log
	if log == nil {
		log = func(string, ...any) {}
	}

	env, err := envspace.New(req.EnvKind, req.Scenario)
	if err != nil {
		return AttackSummary{}, err
	}
	actions, observations, agents, err := envspace.Spaces(env)
	if err != nil {
		return AttackSummary{}, err
	}
	if len(agents) != 2 {
		return AttackSummary{}, fmt.Errorf("two-agent environments are required, env %s has %d", env.Name(), len(agents))
	}
	victimAgent := agents[0]
	if req.AttackerAgentID == agents[0] {
		victimAgent = agents[1]
	}

	sim, err := trainer.NewSim(trainer.SimConfig{
		Env:                   env,
		NumWorkers:            req.NumWorkers,
		TimestepsPerIteration: req.TimestepsPerIteration,
		EpisodesPerWorker:     req.EpisodesPerWorker,
		Horizon:               req.Horizon,
		Seed:                  req.Seed,
	})
	if err != nil {
		return AttackSummary{}, err
	}

	const attackerPolicy = "attacker"
	if err := sim.AddPolicy(attackerPolicy, "default", observations[req.AttackerAgentID], actions[req.AttackerAgentID]); err != nil {
		return AttackSummary{}, err
	}
	if err := sim.AddPolicy(req.VictimPolicy, "default", observations[victimAgent], actions[victimAgent]); err != nil {
		return AttackSummary{}, err
	}

	checkpoint, err := artifact.GetRemoteCheckpoint(req.ArtifactRoot, req.VictimArtifact)
	if err != nil {
		return AttackSummary{}, fmt.Errorf("resolve victim artifact: %w", err)
	}
	if err := sim.Restore(checkpoint); err != nil {
		return AttackSummary{}, fmt.Errorf("restore victim: %w", err)
	}

	// The attacker occupies the "main" slot of the mapping; the victim is the
	// frozen stand-in overriding the other slot.
	sim.ForEachWorker(func(w trainer.Worker) {
		w.SetPolicyMapping(assign.NewEvalMapping(req.AttackerAgentID, attackerPolicy, req.VictimPolicy))
		w.SetTrainablePolicies([]string{attackerPolicy})
	})
	if err := sim.SyncWeights([]string{req.VictimPolicy}); err != nil {
		return AttackSummary{}, err
	}

	startedAt := model.UTCNow()
	var timestepsTotal int64
	for i := 0; i < req.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return AttackSummary{}, err
		}
		result, err := sim.Train(ctx)
		if err != nil {
			return AttackSummary{}, fmt.Errorf("attack trainer step: %w", err)
		}
		timestepsTotal = result.TimestepsTotal
		if mean, ok := result.PolicyRewardMean[attackerPolicy]; ok {
			log("attack reward policy=%s mean=%.4f iteration=%d", attackerPolicy, mean, i)
		}
	}

	if req.Store != nil {
		record := model.RunRecord{
			VersionedRecord: storage.Stamp(),
			RunID:           req.RunID,
			Mode:            "attack",
			EnvKind:         req.EnvKind,
			Scenario:        req.Scenario,
			MainAgentID:     req.AttackerAgentID,
			MainPolicy:      attackerPolicy,
			Opponents:       1,
			TimestepsTotal:  timestepsTotal,
			Iterations:      req.Iterations,
			StartedAtUTC:    startedAt,
			FinishedAtUTC:   model.UTCNow(),
		}
		if err := req.Store.SaveRun(ctx, record); err != nil {
			return AttackSummary{}, fmt.Errorf("persist attack run record: %w", err)
		}
	}

	return AttackSummary{
		RunID:          req.RunID,
		AttackerPolicy: attackerPolicy,
		VictimPolicy:   req.VictimPolicy,
		Iterations:     req.Iterations,
	}, nil
}

// TrainAttackRequest configures a multi-job campaign: a cross product of PBT
// training jobs whose finished artifacts each receive a batch of attack jobs.
type TrainAttackRequest struct {
	// Agents holds the main-agent ids to train; both slots when BothAgents
	// was selected.
	Agents       []int
	NumOpsList   []int
	NumTraining  int
	NumAttacks   int
	NumProcesses int

	// TrialArgs are forwarded verbatim to every child process.
	TrialArgs []string

	WorkDir      string
	PollInterval time.Duration

	// Runner overrides the exec runner; used by tests.
	Runner jobpool.Runner
	Store  storage.Store
	Log    func(format string, args ...any)
}

// RunTrainAttack seeds the queue with the configured training cross product
// and drives the process pool until it drains.
func RunTrainAttack(ctx context.Context, req TrainAttackRequest) (jobpool.PoolStats, error) {
	if len(req.Agents) == 0 {
		req.Agents = []int{0}
	}
	if len(req.NumOpsList) == 0 {
		return jobpool.PoolStats{}, fmt.Errorf("at least one opponent count is required")
	}
	if req.NumTraining < 1 {
		return jobpool.PoolStats{}, fmt.Errorf("at least 1 training repetition is required, got %d", req.NumTraining)
	}
	if req.NumProcesses < 1 {
		return jobpool.PoolStats{}, fmt.Errorf("at least 1 process slot is required, got %d", req.NumProcesses)
	}

	runner := req.Runner
	if runner == nil {
		workDir := req.WorkDir
		if workDir == "" {
			workDir = "jobs"
		}
		execRunner, err := jobpool.NewExecRunner(workDir)
		if err != nil {
			return jobpool.PoolStats{}, err
		}
		runner = execRunner
	}

	pool, err := jobpool.NewPool(jobpool.PoolConfig{
		Runner:          runner,
		Store:           req.Store,
		NumProcesses:    req.NumProcesses,
		NumAttacks:      req.NumAttacks,
		AttackTrialArgs: req.TrialArgs,
		PollInterval:    req.PollInterval,
		Log:             req.Log,
	})
	if err != nil {
		return jobpool.PoolStats{}, err
	}

	for it := 0; it < req.NumTraining; it++ {
		for _, agent := range req.Agents {
			for _, numOps := range req.NumOpsList {
				pool.Enqueue(jobpool.TrainingJob(agent, numOps, req.TrialArgs))
			}
		}
	}

	return pool.Run(ctx)
}

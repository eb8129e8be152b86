// Package pbt drives population-based training of a single main policy
// against a growing population of adversarial opponents. The loop alternates
// between an opponent phase and a main phase, owns the worker assignment of
// opponents, and captures evaluation snapshots of the population.
package pbt

import (
	"context"
	"errors"
	"fmt"
	"math"

	"palisade/internal/artifact"
	"palisade/internal/assign"
	"palisade/internal/envspace"
	"palisade/internal/model"
	"palisade/internal/population"
	"palisade/internal/storage"
	"palisade/internal/trainer"
)

// ErrMissingMainReward signals a trainer result without a reward entry for
// the main policy, which means the episode-termination horizon is
// misconfigured upstream. It is fatal and never retried.
var ErrMissingMainReward = errors.New("trainer result has no reward entry for the main policy; is the episode horizon set?")

const MainPolicyName = "main"

type Config struct {
	Trainer   trainer.Trainer
	Env       envspace.Env
	Artifacts *artifact.Manager
	Store     storage.Store
	// Log receives progress lines; nil discards them.
	Log func(format string, args ...any)

	// MainAgentID selects which agent slot the main policy controls; the
	// other slot belongs to the opponent population.
	MainAgentID  int
	NumOpponents int
	// ExperienceFactor scales opponent training: the opponent phase runs
	// round(ExperienceFactor*numOpponents) trainer steps when positive, 1
	// when non-positive, so the population in aggregate can match the main
	// policy's experience.
	ExperienceFactor float64
	// GrowthInterval is the main-timestep interval between population
	// growths; -1 disables growth.
	GrowthInterval int64
	// MaxOpponents caps growth; 0 means unbounded.
	MaxOpponents int
	// CheckpointInterval is the main-timestep cadence of checkpoint saves.
	CheckpointInterval int64
	// EvalInterval is the main-timestep cadence of evaluation snapshot
	// captures.
	EvalInterval int64
	MaxTimesteps int64
	// LimitPolicyCache bounds each rollout worker's resident-policy count to
	// its assigned share instead of a generous default.
	LimitPolicyCache bool
	// ArchitectureRef names the policy architecture for created policies.
	ArchitectureRef string

	// BaselineArtifacts are checkpoint references whose weights seed the
	// evaluation archive's baseline set.
	BaselineArtifacts []string
	BaselinePolicy    string
	ArtifactRoot      string

	// Mode and scenario identify the run in its persisted record.
	EnvKind  string
	Scenario string
}

// Summary is the terminal outcome of one PBT run.
type Summary struct {
	RunID           string
	MainPolicy      string
	Iterations      int
	TimestepsMain   int64
	TimestepsTotal  int64
	Opponents       int
	Checkpoints     int
	EvalGenerations int
}

type Manager struct {
	cfg Config
	log func(format string, args ...any)

	pop     *population.Population
	archive *population.Archive

	mainAgentID int
	opAgentID   int

	byWorker [][]string

	timestepsMain  int64
	timestepsTotal int64
	iterations     int
	opsAdded       int
	checkpoints    int
	nextEvalAt     int64
}

func New(cfg Config) (*Manager, error) {
	if cfg.Trainer == nil {
		return nil, fmt.Errorf("trainer is required")
	}
	if cfg.Env == nil {
		return nil, fmt.Errorf("env is required")
	}
	if cfg.Artifacts == nil {
		return nil, fmt.Errorf("artifact manager is required")
	}
	if cfg.NumOpponents < 1 {
		return nil, fmt.Errorf("at least 1 opponent is required, got %d", cfg.NumOpponents)
	}
	if cfg.MaxTimesteps < 1 {
		return nil, fmt.Errorf("max timesteps must be >= 1, got %d", cfg.MaxTimesteps)
	}
	if cfg.CheckpointInterval < 1 {
		return nil, fmt.Errorf("checkpoint interval must be >= 1, got %d", cfg.CheckpointInterval)
	}
	if cfg.EvalInterval < 1 {
		cfg.EvalInterval = 1
	}
	if cfg.GrowthInterval < -1 || cfg.GrowthInterval == 0 {
		return nil, fmt.Errorf("growth interval must be positive or -1, got %d", cfg.GrowthInterval)
	}
	if cfg.ArchitectureRef == "" {
		cfg.ArchitectureRef = "default"
	}
	if cfg.BaselinePolicy == "" {
		cfg.BaselinePolicy = "policy_1"
	}

	pop, err := population.New(MainPolicyName, cfg.NumOpponents)
	if err != nil {
		return nil, err
	}

	logFn := cfg.Log
	if logFn == nil {
		logFn = func(string, ...any) {}
	}

	return &Manager{
		cfg:        cfg,
		log:        logFn,
		pop:        pop,
		archive:    population.NewArchive(),
		nextEvalAt: cfg.EvalInterval,
	}, nil
}

func (m *Manager) Population() *population.Population { return m.pop }

func (m *Manager) Archive() *population.Archive { return m.archive }

// Run executes the training loop to its terminal state and returns the run
// summary. The terminal condition is mainTimesteps >= MaxTimesteps; a final
// checkpoint is always saved on normal termination.
func (m *Manager) Run(ctx context.Context) (Summary, error) {
	if err := m.setUp(ctx); err != nil {
		return Summary{}, err
	}

	startedAt := model.UTCNow()
	for m.timestepsMain < m.cfg.MaxTimesteps {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		if err := m.growPopulationIfDue(); err != nil {
			return Summary{}, err
		}

		if err := m.runOpponentPhase(ctx); err != nil {
			return Summary{}, err
		}

		result, err := m.runMainPhase(ctx)
		if err != nil {
			return Summary{}, err
		}

		if _, ok := result.PolicyRewardMean[m.pop.MainPolicy()]; !ok {
			return Summary{}, ErrMissingMainReward
		}

		if err := m.checkpointIfDue(ctx); err != nil {
			return Summary{}, err
		}
		m.captureEvalIfDue(result)

		m.iterations++
	}

	if err := m.saveCheckpoint(ctx); err != nil {
		return Summary{}, err
	}
	m.log("saved final checkpoint run=%s version=%d", m.cfg.Artifacts.RunID(), m.checkpoints)

	summary := Summary{
		RunID:           m.cfg.Artifacts.RunID(),
		MainPolicy:      m.pop.MainPolicy(),
		Iterations:      m.iterations,
		TimestepsMain:   m.timestepsMain,
		TimestepsTotal:  m.timestepsTotal,
		Opponents:       m.pop.Size(),
		Checkpoints:     m.checkpoints,
		EvalGenerations: m.archive.Len(),
	}
	if err := m.persistRun(ctx, summary, startedAt); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (m *Manager) setUp(ctx context.Context) error {
	actions, observations, agents, err := envspace.Spaces(m.cfg.Env)
	if err != nil {
		return err
	}
	if len(agents) != 2 {
		return fmt.Errorf("two-agent environments are required, env %s has %d", m.cfg.Env.Name(), len(agents))
	}
	switch m.cfg.MainAgentID {
	case agents[0]:
		m.mainAgentID, m.opAgentID = agents[0], agents[1]
	case agents[1]:
		m.mainAgentID, m.opAgentID = agents[1], agents[0]
	default:
		return fmt.Errorf("main agent id %d is not an agent of env %s", m.cfg.MainAgentID, m.cfg.Env.Name())
	}

	// Create main, initial opponents and the evaluation stand-in, each bound
	// to its agent slot's fixed spaces.
	names := append([]string{m.pop.MainPolicy()}, m.pop.Opponents()...)
	names = append(names, population.EvalPolicyName)
	for _, name := range names {
		agent := m.opAgentID
		if name == m.pop.MainPolicy() {
			agent = m.mainAgentID
		}
		if err := m.cfg.Trainer.AddPolicy(name, m.cfg.ArchitectureRef, observations[agent], actions[agent]); err != nil {
			return fmt.Errorf("create policy %s: %w", name, err)
		}
	}

	m.installPolicyCapacities()

	if err := m.seedBaselines(); err != nil {
		return err
	}

	return m.installAssignments()
}

// installPolicyCapacities bounds per-worker resident policies. Rollout
// workers only ever see their assigned opponent share plus main and the eval
// stand-in; the coordinator must hold everything.
func (m *Manager) installPolicyCapacities() {
	numOps := m.pop.Size()
	workerCapacity := 100
	if m.cfg.LimitPolicyCache {
		share := numOps / m.cfg.Trainer.NumWorkers()
		if share < 1 {
			share = 1
		}
		workerCapacity = share + 2
	}
	coordinatorCapacity := numOps + 2
	m.cfg.Trainer.ForEachWorker(func(w trainer.Worker) {
		if w.Index() == 0 {
			w.SetPolicyCapacity(coordinatorCapacity)
			return
		}
		w.SetPolicyCapacity(workerCapacity)
	})
}

func (m *Manager) seedBaselines() error {
	for _, ref := range m.cfg.BaselineArtifacts {
		path, err := artifact.GetRemoteCheckpoint(m.cfg.ArtifactRoot, ref)
		if err != nil {
			return fmt.Errorf("resolve baseline %s: %w", ref, err)
		}
		weights, err := artifact.LoadSavedWeights(path, m.cfg.BaselinePolicy)
		if err != nil {
			return fmt.Errorf("load baseline %s: %w", ref, err)
		}
		m.archive.SeedBaseline(weights)
	}
	return nil
}

// installAssignments recomputes the opponent distribution and reinstalls
// mapping snapshots on every worker. Must run before the next opponent phase
// after any population change; stale mappings would route rollouts through an
// outdated or absent policy binding.
func (m *Manager) installAssignments() error {
	byWorker, err := assign.Distribute(m.pop.Opponents(), m.cfg.Trainer.NumWorkers())
	if err != nil {
		return err
	}
	m.byWorker = byWorker

	mainPolicy := m.pop.MainPolicy()
	allOpponents := m.pop.Opponents()
	m.cfg.Trainer.ForEachWorker(func(w trainer.Worker) {
		idx := w.Index()
		if idx == 0 {
			w.SetPolicyMapping(assign.NewMapping(m.mainAgentID, mainPolicy, allOpponents))
			return
		}
		w.SetPolicyMapping(assign.NewMapping(m.mainAgentID, mainPolicy, byWorker[idx]))
	})
	return nil
}

// growPopulationIfDue adds exactly one opponent when the growth threshold has
// been crossed, cloned structurally from the last opponent with spaces from
// the opponent agent slot. Growth forces a full assignment reinstall.
func (m *Manager) growPopulationIfDue() error {
	if m.cfg.GrowthInterval <= 0 {
		return nil
	}
	if m.timestepsMain <= int64(m.opsAdded+1)*m.cfg.GrowthInterval {
		return nil
	}
	if m.cfg.MaxOpponents > 0 && m.pop.Size() >= m.cfg.MaxOpponents {
		return nil
	}

	handle, err := m.cfg.Trainer.GetPolicy(m.pop.LastOpponent())
	if err != nil {
		return fmt.Errorf("clone source for new opponent: %w", err)
	}
	actions, observations, _, err := envspace.Spaces(m.cfg.Env)
	if err != nil {
		return err
	}
	name := m.pop.AddOpponent()
	if err := m.cfg.Trainer.AddPolicy(name, handle.ArchitectureRef, observations[m.opAgentID], actions[m.opAgentID]); err != nil {
		return fmt.Errorf("add opponent %s: %w", name, err)
	}
	m.opsAdded++
	m.log("population grew to %d opponents (added %s at main timestep %d)", m.pop.Size(), name, m.timestepsMain)

	return m.installAssignments()
}

// opponentIterationFactor is recomputed from the current population size so
// the aggregate-experience relation keeps holding after growth.
func (m *Manager) opponentIterationFactor() int {
	if m.cfg.ExperienceFactor <= 0 {
		return 1
	}
	factor := int(math.Round(m.cfg.ExperienceFactor * float64(m.pop.Size())))
	if factor < 1 {
		factor = 1
	}
	return factor
}

func (m *Manager) runOpponentPhase(ctx context.Context) error {
	opponents := m.pop.ActiveOpponents()
	m.cfg.Trainer.ForEachWorker(func(w trainer.Worker) {
		idx := w.Index()
		if idx == 0 {
			// The coordinator holds the full trainable set for bookkeeping;
			// it performs no rollouts.
			w.SetTrainablePolicies(opponents)
			return
		}
		w.SetTrainablePolicies(m.byWorker[idx])
	})
	if err := m.cfg.Trainer.SyncWeights([]string{m.pop.MainPolicy()}); err != nil {
		return fmt.Errorf("sync weights before opponent phase: %w", err)
	}

	before := m.timestepsTotal
	factor := m.opponentIterationFactor()
	if _, err := m.train(ctx, factor, opponents); err != nil {
		return err
	}

	delta := m.timestepsTotal - before
	m.creditOpponentTimesteps(delta)
	return nil
}

func (m *Manager) creditOpponentTimesteps(delta int64) {
	active := 0
	for i := 0; i < m.pop.Size(); i++ {
		if !m.pop.Deactivated(i) {
			active++
		}
	}
	if active == 0 || delta <= 0 {
		return
	}
	share := delta / int64(active)
	for i := 0; i < m.pop.Size(); i++ {
		if !m.pop.Deactivated(i) {
			_ = m.pop.AddTimesteps(i, share)
		}
	}
}

func (m *Manager) runMainPhase(ctx context.Context) (trainer.Result, error) {
	mainPolicy := m.pop.MainPolicy()
	m.cfg.Trainer.ForEachWorker(func(w trainer.Worker) {
		w.SetTrainablePolicies([]string{mainPolicy})
	})
	if err := m.cfg.Trainer.SyncWeights([]string{mainPolicy}); err != nil {
		return trainer.Result{}, fmt.Errorf("sync weights before main phase: %w", err)
	}

	before := m.timestepsTotal
	result, err := m.train(ctx, 1, []string{mainPolicy})
	if err != nil {
		return trainer.Result{}, err
	}
	m.timestepsMain += m.timestepsTotal - before
	return result, nil
}

// train runs the external trainer for the given number of internal steps and
// accumulates total timesteps and per-policy episode counters for the
// currently-training set.
func (m *Manager) train(ctx context.Context, iterations int, training []string) (trainer.Result, error) {
	if iterations < 1 {
		return trainer.Result{}, fmt.Errorf("train for at least 1 iteration, got %d", iterations)
	}
	var result trainer.Result
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return trainer.Result{}, err
		}
		var err error
		result, err = m.cfg.Trainer.Train(ctx)
		if err != nil {
			return trainer.Result{}, fmt.Errorf("trainer step: %w", err)
		}
		m.timestepsTotal = result.TimestepsTotal
		for _, policy := range training {
			if episodes := len(result.PolicyRewardHistory[policy]); episodes > 0 {
				m.pop.AddEpisodes(policy, int64(episodes))
			}
		}
	}
	return result, nil
}

func (m *Manager) checkpointIfDue(ctx context.Context) error {
	next := int64(m.checkpoints+1) * m.cfg.CheckpointInterval
	if m.timestepsMain <= next {
		return nil
	}
	return m.saveCheckpoint(ctx)
}

func (m *Manager) saveCheckpoint(ctx context.Context) error {
	snapshot := make(artifact.Snapshot)
	names := append([]string{m.pop.MainPolicy()}, m.pop.Opponents()...)
	for _, name := range names {
		weights, err := m.cfg.Trainer.GetWeights(name)
		if err != nil {
			return fmt.Errorf("checkpoint weights for %s: %w", name, err)
		}
		snapshot[name] = weights.Clone()
	}
	ref, err := m.cfg.Artifacts.SaveNewCheckpoint(ctx, snapshot, m.timestepsMain)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	m.checkpoints++
	m.log("checkpoint saved ref=%s timesteps_main=%d", ref, m.timestepsMain)
	return nil
}

// captureEvalIfDue appends a new generation of opponent weight copies to the
// archive and logs the iteration's metrics whenever the eval threshold has
// been crossed.
func (m *Manager) captureEvalIfDue(result trainer.Result) {
	if m.timestepsMain <= m.nextEvalAt {
		return
	}
	m.nextEvalAt += m.cfg.EvalInterval

	generation := make([]population.Weights, 0, m.pop.Size())
	for _, name := range m.pop.Opponents() {
		weights, err := m.cfg.Trainer.GetWeights(name)
		if err != nil {
			// Opponents are created through this manager; a miss here is a
			// trainer bug, not a recoverable condition.
			m.log("eval capture skipped policy %s: %v", name, err)
			continue
		}
		generation = append(generation, weights)
	}
	m.archive.Capture(generation)

	for policy, mean := range result.PolicyRewardMean {
		m.log("reward policy=%s mean=%.4f timestep=%d timestep_agg=%d", policy, mean, m.timestepsMain, m.timestepsTotal)
	}
	for _, policy := range m.pop.EpisodePolicies() {
		m.log("episodes policy=%s total=%d timestep=%d", policy, m.pop.Episodes(policy), m.timestepsMain)
	}
}

func (m *Manager) persistRun(ctx context.Context, summary Summary, startedAt string) error {
	if m.cfg.Store == nil {
		return nil
	}
	record := model.RunRecord{
		VersionedRecord: storage.Stamp(),
		RunID:           summary.RunID,
		Mode:            "pbt",
		EnvKind:         m.cfg.EnvKind,
		Scenario:        m.cfg.Scenario,
		MainAgentID:     m.mainAgentID,
		MainPolicy:      summary.MainPolicy,
		Opponents:       summary.Opponents,
		TimestepsMain:   summary.TimestepsMain,
		TimestepsTotal:  summary.TimestepsTotal,
		Iterations:      summary.Iterations,
		Checkpoints:     summary.Checkpoints,
		EvalGenerations: summary.EvalGenerations,
		StartedAtUTC:    startedAt,
		FinishedAtUTC:   model.UTCNow(),
	}
	if err := m.cfg.Store.SaveRun(ctx, record); err != nil {
		return fmt.Errorf("persist run record: %w", err)
	}
	return nil
}

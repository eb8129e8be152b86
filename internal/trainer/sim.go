package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"palisade/internal/assign"
	"palisade/internal/envspace"
	"palisade/internal/population"
)

// SimConfig configures the in-process stand-in trainer.
type SimConfig struct {
	Env        envspace.Env
	NumWorkers int
	// TimestepsPerIteration is the environment timesteps one Train call adds.
	TimestepsPerIteration int64
	// EpisodesPerWorker is how many episodes each rollout worker completes
	// per Train call when Horizon > 0.
	EpisodesPerWorker int
	// Horizon is the episode termination length. Zero or negative means no
	// episode ever completes, so results carry no reward entries.
	Horizon int
	Seed    int64
}

type simPolicy struct {
	name    string
	arch    string
	obs     envspace.Space
	act     envspace.Space
	weights population.Weights
}

type simWorker struct {
	index     int
	mapping   assign.Mapping
	trainable []string
	capacity  int
}

func (w *simWorker) Index() int { return w.index }

func (w *simWorker) SetTrainablePolicies(names []string) {
	w.trainable = append([]string(nil), names...)
}

func (w *simWorker) SetPolicyMapping(m assign.Mapping) { w.mapping = m }

func (w *simWorker) SetPolicyCapacity(n int) { w.capacity = n }

// Sim is a deterministic trainer simulation honoring the full Trainer
// contract: it advances timesteps, drifts trainable policy weights and emits
// reward histories through the installed mapping snapshots.
type Sim struct {
	cfg SimConfig
	rng *rand.Rand

	mu       sync.Mutex
	training bool

	policies map[string]*simPolicy
	workers  []*simWorker

	timestepsTotal int64
	episodeCounter int
	syncCount      int
}

func NewSim(cfg SimConfig) (*Sim, error) {
	if cfg.Env == nil {
		return nil, fmt.Errorf("env is required")
	}
	if cfg.NumWorkers < 1 {
		return nil, fmt.Errorf("at least 1 rollout worker is required, got %d", cfg.NumWorkers)
	}
	if cfg.TimestepsPerIteration <= 0 {
		cfg.TimestepsPerIteration = 1000
	}
	if cfg.EpisodesPerWorker <= 0 {
		cfg.EpisodesPerWorker = 4
	}
	workers := make([]*simWorker, 0, cfg.NumWorkers+1)
	for i := 0; i <= cfg.NumWorkers; i++ {
		workers = append(workers, &simWorker{index: i, capacity: 100})
	}
	return &Sim{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		policies: make(map[string]*simPolicy),
		workers:  workers,
	}, nil
}

func (s *Sim) AddPolicy(id, architectureRef string, obs, act envspace.Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return fmt.Errorf("policy id is required")
	}
	if _, exists := s.policies[id]; exists {
		return fmt.Errorf("policy already exists: %s", id)
	}
	s.policies[id] = &simPolicy{
		name:    id,
		arch:    architectureRef,
		obs:     obs,
		act:     act,
		weights: initialWeights(obs, act, s.rng),
	}
	return nil
}

func initialWeights(obs, act envspace.Space, rng *rand.Rand) population.Weights {
	obsDim := spaceDim(obs)
	actDim := spaceDim(act)
	w := make([]float64, obsDim*actDim)
	for i := range w {
		w[i] = rng.NormFloat64() * 0.01
	}
	b := make([]float64, actDim)
	return population.Weights{"w": w, "b": b}
}

func spaceDim(s envspace.Space) int {
	switch s.Kind {
	case envspace.SpaceDiscrete:
		if s.N > 0 {
			return s.N
		}
		return 1
	case envspace.SpaceBox:
		if len(s.Low) > 0 {
			return len(s.Low)
		}
		return 1
	default:
		return 1
	}
}

func (s *Sim) GetPolicy(id string) (PolicyHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pol, ok := s.policies[id]
	if !ok {
		return PolicyHandle{}, fmt.Errorf("unknown policy: %s", id)
	}
	return PolicyHandle{Name: pol.name, ArchitectureRef: pol.arch}, nil
}

func (s *Sim) GetWeights(policy string) (population.Weights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pol, ok := s.policies[policy]
	if !ok {
		return nil, fmt.Errorf("unknown policy: %s", policy)
	}
	return pol.weights, nil
}

// Restore loads a checkpoint produced by the artifact manager: a JSON object
// of policy name to weights. Policies absent from the trainer are created
// with empty spaces.
func (s *Sim) Restore(checkpointPath string) error {
	data, err := os.ReadFile(checkpointPath)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	var snapshot map[string]population.Weights
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", checkpointPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, weights := range snapshot {
		pol, ok := s.policies[name]
		if !ok {
			pol = &simPolicy{name: name}
			s.policies[name] = pol
		}
		pol.weights = weights.Clone()
	}
	return nil
}

func (s *Sim) NumWorkers() int { return s.cfg.NumWorkers }

func (s *Sim) ForEachWorker(fn func(w Worker)) {
	for _, worker := range s.workers {
		fn(worker)
	}
}

func (s *Sim) SyncWeights(policies []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range policies {
		if _, ok := s.policies[name]; !ok {
			return fmt.Errorf("sync weights: unknown policy: %s", name)
		}
	}
	s.syncCount++
	return nil
}

// SyncCount reports how many blocking weight synchronizations completed.
func (s *Sim) SyncCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncCount
}

func (s *Sim) Train(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	if s.training {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("train invoked concurrently on the same trainer instance")
	}
	s.training = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.training = false
		s.mu.Unlock()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.timestepsTotal += s.cfg.TimestepsPerIteration

	history := make(map[string][]float64)
	if s.cfg.Horizon > 0 {
		agents := s.cfg.Env.AgentIDs()
		for _, worker := range s.workers {
			if worker.index == 0 {
				continue
			}
			for ep := 0; ep < s.cfg.EpisodesPerWorker; ep++ {
				episode := s.episodeCounter
				s.episodeCounter++
				for _, agent := range agents {
					name, ok := worker.mapping.Lookup(agent, episode)
					if !ok {
						continue
					}
					reward := s.rng.NormFloat64()
					history[name] = append(history[name], reward)
				}
			}
			s.driftTrainable(worker)
		}
	}

	means := make(map[string]float64, len(history))
	for name, rewards := range history {
		total := 0.0
		for _, r := range rewards {
			total += r
		}
		means[name] = total / float64(len(rewards))
	}

	return Result{
		TimestepsTotal:      s.timestepsTotal,
		PolicyRewardMean:    means,
		PolicyRewardHistory: history,
	}, nil
}

func (s *Sim) driftTrainable(worker *simWorker) {
	for _, name := range worker.trainable {
		pol, ok := s.policies[name]
		if !ok {
			continue
		}
		for _, values := range pol.weights {
			for i := range values {
				values[i] += s.rng.NormFloat64() * 0.001
			}
		}
	}
}

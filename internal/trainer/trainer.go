// Package trainer declares the capability surface the training loop needs
// from the external RL trainer, plus an in-process simulation used by the CLI
// and tests. The real algorithm stays behind the interface.
package trainer

import (
	"context"

	"palisade/internal/assign"
	"palisade/internal/envspace"
	"palisade/internal/population"
)

// Result is the outcome of one synchronous trainer step.
type Result struct {
	// TimestepsTotal is the cumulative environment timesteps seen by the
	// trainer across all policies since creation.
	TimestepsTotal int64
	// PolicyRewardMean holds the mean episode reward per policy for episodes
	// completed during this step. A missing main-policy entry signals a
	// misconfigured episode horizon upstream.
	PolicyRewardMean map[string]float64
	// PolicyRewardHistory holds the per-episode rewards per policy for this
	// step; its lengths are the per-policy episode counts.
	PolicyRewardHistory map[string][]float64
}

// PolicyHandle exposes the structural identity of a policy so new population
// members can be cloned from an existing one.
type PolicyHandle struct {
	Name            string
	ArchitectureRef string
}

// Worker is one distributed rollout unit. Index 0 is the coordinator, which
// performs no rollouts.
type Worker interface {
	Index() int
	SetTrainablePolicies(names []string)
	SetPolicyMapping(m assign.Mapping)
	// SetPolicyCapacity bounds how many policies the worker keeps resident.
	SetPolicyCapacity(n int)
}

// Trainer is the external-trainer collaborator. Train must never be invoked
// concurrently on the same instance, and (mapping, trainable-set) pairs must
// be installed on all workers before Train runs.
type Trainer interface {
	Train(ctx context.Context) (Result, error)
	GetWeights(policy string) (population.Weights, error)
	AddPolicy(id, architectureRef string, obs, act envspace.Space) error
	GetPolicy(id string) (PolicyHandle, error)
	Restore(checkpointPath string) error
	// NumWorkers is the rollout worker count, excluding the coordinator.
	NumWorkers() int
	// ForEachWorker applies fn to every worker, the coordinator included.
	ForEachWorker(fn func(w Worker))
	// SyncWeights blocks until the named policies' weights are visible on
	// every worker.
	SyncWeights(policies []string) error
}

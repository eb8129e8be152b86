// Package assign distributes opponent policies across rollout workers so each
// worker only keeps a bounded subset of the population resident, and carries
// the agent-to-policy bindings as immutable snapshots instead of closures.
package assign

import "fmt"

// Distribute maps opponents onto workers. Index 0 is the coordinator and is
// never assigned opponents for rollout purposes. With at least as many
// opponents as workers, opponent i lands on worker (i mod numWorkers)+1,
// giving disjoint sets whose sizes differ by at most one. With fewer opponents
// than workers, opponents are reused round-robin so every worker holds exactly
// one.
func Distribute(opponents []string, numWorkers int) ([][]string, error) {
	if numWorkers < 1 {
		return nil, fmt.Errorf("at least 1 worker is required, got %d", numWorkers)
	}
	if len(opponents) == 0 {
		return nil, fmt.Errorf("at least 1 opponent is required")
	}

	byWorker := make([][]string, numWorkers+1)
	if len(opponents) >= numWorkers {
		for i, name := range opponents {
			worker := (i % numWorkers) + 1
			byWorker[worker] = append(byWorker[worker], name)
		}
		return byWorker, nil
	}
	for worker := 1; worker <= numWorkers; worker++ {
		byWorker[worker] = append(byWorker[worker], opponents[(worker-1)%len(opponents)])
	}
	return byWorker, nil
}

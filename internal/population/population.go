package population

import (
	"fmt"

	"palisade/internal/envspace"
)

// Role distinguishes the one main policy from the opponent population and the
// evaluation stand-in.
type Role string

const (
	RoleMain     Role = "main"
	RoleOpponent Role = "opponent"
	RoleEval     Role = "eval"
)

// Policy is one named policy with its fixed agent-slot binding and spaces.
type Policy struct {
	Name        string
	Role        Role
	AgentID     int
	Observation envspace.Space
	Action      envspace.Space
}

// Population is the append-only opponent arena plus the main policy identity.
// Opponents are never removed; deactivation is a soft flag and positions stay
// stable so per-opponent stats keep their index.
type Population struct {
	mainPolicy string

	opponents   []string
	deactivated []bool
	timesteps   []int64

	episodes map[string]int64

	nextOpponent int
}

const EvalPolicyName = "eval_op"

// New creates a population with the main policy and numOpponents initial
// opponents named op_0..op_{n-1}.
func New(mainPolicy string, numOpponents int) (*Population, error) {
	if mainPolicy == "" {
		return nil, fmt.Errorf("main policy name is required")
	}
	if numOpponents < 1 {
		return nil, fmt.Errorf("population needs at least 1 opponent, got %d", numOpponents)
	}
	p := &Population{
		mainPolicy: mainPolicy,
		episodes:   make(map[string]int64),
	}
	for i := 0; i < numOpponents; i++ {
		p.AddOpponent()
	}
	return p, nil
}

func (p *Population) MainPolicy() string { return p.mainPolicy }

// AddOpponent appends one new opponent and returns its name. The naming index
// increases monotonically and is never reused.
func (p *Population) AddOpponent() string {
	name := fmt.Sprintf("op_%d", p.nextOpponent)
	p.nextOpponent++
	p.opponents = append(p.opponents, name)
	p.deactivated = append(p.deactivated, false)
	p.timesteps = append(p.timesteps, 0)
	return name
}

// Size is the total opponent count, deactivated positions included.
func (p *Population) Size() int { return len(p.opponents) }

// Opponents returns the opponent names in insertion order. The order drives
// worker distribution and round-robin indexing.
func (p *Population) Opponents() []string {
	return append([]string(nil), p.opponents...)
}

// ActiveOpponents returns the opponents that are not deactivated, in order.
func (p *Population) ActiveOpponents() []string {
	out := make([]string, 0, len(p.opponents))
	for i, name := range p.opponents {
		if !p.deactivated[i] {
			out = append(out, name)
		}
	}
	return out
}

// LastOpponent returns the most recently added opponent; new opponents are
// cloned structurally from it.
func (p *Population) LastOpponent() string {
	return p.opponents[len(p.opponents)-1]
}

// Deactivate soft-removes the opponent at position i. The position is kept
// for stats bookkeeping.
func (p *Population) Deactivate(i int) error {
	if i < 0 || i >= len(p.opponents) {
		return fmt.Errorf("opponent position out of range: %d", i)
	}
	p.deactivated[i] = true
	return nil
}

func (p *Population) Deactivated(i int) bool {
	return i >= 0 && i < len(p.deactivated) && p.deactivated[i]
}

// AddTimesteps credits trained timesteps to the opponent at position i.
func (p *Population) AddTimesteps(i int, steps int64) error {
	if i < 0 || i >= len(p.timesteps) {
		return fmt.Errorf("opponent position out of range: %d", i)
	}
	p.timesteps[i] += steps
	return nil
}

func (p *Population) Timesteps(i int) int64 {
	if i < 0 || i >= len(p.timesteps) {
		return 0
	}
	return p.timesteps[i]
}

// AddEpisodes accumulates the per-policy episode counter.
func (p *Population) AddEpisodes(policy string, n int64) {
	p.episodes[policy] += n
}

func (p *Population) Episodes(policy string) int64 {
	return p.episodes[policy]
}

// EpisodePolicies returns the policies with a nonzero episode counter.
func (p *Population) EpisodePolicies() []string {
	out := make([]string, 0, len(p.episodes))
	for name := range p.episodes {
		out = append(out, name)
	}
	return out
}

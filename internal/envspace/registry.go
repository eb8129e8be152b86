package envspace

import "fmt"

// New builds a two-agent environment handle for the given kind and scenario.
// Unknown kinds and scenarios are configuration errors and must fail setup.
func New(kind, scenario string) (Env, error) {
	switch kind {
	case "matrix":
		return newMatrixEnv(scenario)
	case "gridworld":
		return newGridworldEnv(scenario)
	default:
		return nil, fmt.Errorf("environment kind %q not supported", kind)
	}
}

type matrixEnv struct {
	scenario string
	actions  int
}

func newMatrixEnv(scenario string) (*matrixEnv, error) {
	switch scenario {
	case "rps":
		return &matrixEnv{scenario: scenario, actions: 3}, nil
	case "matching-pennies":
		return &matrixEnv{scenario: scenario, actions: 2}, nil
	default:
		return nil, fmt.Errorf("matrix scenario %q not supported", scenario)
	}
}

func (e *matrixEnv) Name() string { return "matrix/" + e.scenario }

func (e *matrixEnv) AgentIDs() []int { return []int{0, 1} }

func (e *matrixEnv) ObservationSpace(agent int) (Space, error) {
	if err := checkAgent(e, agent); err != nil {
		return Space{}, err
	}
	// One-hot of the opponent's last action plus a "no move yet" slot.
	low := make([]float64, e.actions+1)
	high := make([]float64, e.actions+1)
	for i := range high {
		high[i] = 1
	}
	return Box(low, high), nil
}

func (e *matrixEnv) ActionSpace(agent int) (Space, error) {
	if err := checkAgent(e, agent); err != nil {
		return Space{}, err
	}
	return Discrete(e.actions), nil
}

type gridworldEnv struct {
	scenario string
	size     int
}

func newGridworldEnv(scenario string) (*gridworldEnv, error) {
	switch scenario {
	case "pursuit":
		return &gridworldEnv{scenario: scenario, size: 8}, nil
	case "pursuit-large":
		return &gridworldEnv{scenario: scenario, size: 16}, nil
	default:
		return nil, fmt.Errorf("gridworld scenario %q not supported", scenario)
	}
}

func (e *gridworldEnv) Name() string { return "gridworld/" + e.scenario }

func (e *gridworldEnv) AgentIDs() []int { return []int{0, 1} }

func (e *gridworldEnv) ObservationSpace(agent int) (Space, error) {
	if err := checkAgent(e, agent); err != nil {
		return Space{}, err
	}
	// Own position, opponent position, both normalized to [0, 1].
	low := []float64{0, 0, 0, 0}
	high := []float64{1, 1, 1, 1}
	return Box(low, high), nil
}

func (e *gridworldEnv) ActionSpace(agent int) (Space, error) {
	if err := checkAgent(e, agent); err != nil {
		return Space{}, err
	}
	// Stay plus the four cardinal moves.
	return Discrete(5), nil
}

func checkAgent(env Env, agent int) error {
	for _, id := range env.AgentIDs() {
		if id == agent {
			return nil
		}
	}
	return fmt.Errorf("env %s has no agent %d", env.Name(), agent)
}

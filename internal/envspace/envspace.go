package envspace

import "fmt"

// SpaceKind discriminates the supported space descriptor shapes.
type SpaceKind string

const (
	SpaceDiscrete SpaceKind = "discrete"
	SpaceBox      SpaceKind = "box"
)

// Space is a plain-data action/observation space descriptor. Descriptors are
// fixed at policy creation and travel across worker boundaries as data.
type Space struct {
	Kind  SpaceKind `json:"kind"`
	N     int       `json:"n,omitempty"`
	Low   []float64 `json:"low,omitempty"`
	High  []float64 `json:"high,omitempty"`
	Shape []int     `json:"shape,omitempty"`
}

func Discrete(n int) Space {
	return Space{Kind: SpaceDiscrete, N: n}
}

func Box(low, high []float64) Space {
	return Space{
		Kind:  SpaceBox,
		Low:   append([]float64(nil), low...),
		High:  append([]float64(nil), high...),
		Shape: []int{len(low)},
	}
}

// Env is the environment collaborator surface the core needs: ordered agent
// identifiers and per-agent space introspection.
type Env interface {
	Name() string
	AgentIDs() []int
	ObservationSpace(agent int) (Space, error)
	ActionSpace(agent int) (Space, error)
}

// Spaces resolves the per-agent action and observation spaces together with
// the ordered agent ids.
func Spaces(env Env) (actions map[int]Space, observations map[int]Space, agents []int, err error) {
	if env == nil {
		return nil, nil, nil, fmt.Errorf("env is required")
	}
	agents = env.AgentIDs()
	if len(agents) == 0 {
		return nil, nil, nil, fmt.Errorf("env %s reports no agents", env.Name())
	}
	actions = make(map[int]Space, len(agents))
	observations = make(map[int]Space, len(agents))
	for _, agent := range agents {
		act, err := env.ActionSpace(agent)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("action space for agent %d: %w", agent, err)
		}
		obs, err := env.ObservationSpace(agent)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("observation space for agent %d: %w", agent, err)
		}
		actions[agent] = act
		observations[agent] = obs
	}
	return actions, observations, agents, nil
}

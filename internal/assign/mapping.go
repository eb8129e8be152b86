package assign

// Mapping is an immutable agent-slot to policy-name binding installed on a
// worker. It is plain data, safe to hand across worker boundaries; workers
// must receive a fresh snapshot after every population change.
type Mapping struct {
	MainAgentID int
	MainPolicy  string
	// Opponents are the policies resident on the receiving worker, in
	// population order.
	Opponents []string
	// EvalPolicy, when set, overrides the opponent slot entirely. Used for
	// evaluation rollouts against the stand-in policy.
	EvalPolicy string
}

// NewMapping builds a rollout mapping for one worker's resident opponents.
func NewMapping(mainAgentID int, mainPolicy string, opponents []string) Mapping {
	return Mapping{
		MainAgentID: mainAgentID,
		MainPolicy:  mainPolicy,
		Opponents:   append([]string(nil), opponents...),
	}
}

// NewEvalMapping routes the non-main slot to a single frozen stand-in,
// regardless of resident opponents. Used for rollouts against a fixed policy:
// evaluation stand-ins and attack victims.
func NewEvalMapping(mainAgentID int, mainPolicy, evalPolicy string) Mapping {
	return Mapping{
		MainAgentID: mainAgentID,
		MainPolicy:  mainPolicy,
		EvalPolicy:  evalPolicy,
	}
}

// Lookup resolves the policy controlling agentID for the given episode. The
// main agent always maps to the main policy; the opponent slot cycles through
// the worker's resident opponents by episode.
func (m Mapping) Lookup(agentID, episode int) (string, bool) {
	if agentID == m.MainAgentID {
		return m.MainPolicy, true
	}
	if m.EvalPolicy != "" {
		return m.EvalPolicy, true
	}
	if len(m.Opponents) == 0 {
		return "", false
	}
	if episode < 0 {
		episode = -episode
	}
	return m.Opponents[episode%len(m.Opponents)], true
}

package population

// Archive is the append-only evaluation snapshot archive: one entry per
// captured generation, each a list of opponent weight copies, plus baseline
// weights loaded once at startup. Entries are deep copies taken at capture
// time so later training mutation cannot corrupt history.
type Archive struct {
	generations [][]Weights
	baselines   []Weights
}

func NewArchive() *Archive {
	return &Archive{}
}

// SeedBaseline appends one baseline opponent loaded from an external artifact.
func (a *Archive) SeedBaseline(w Weights) {
	a.baselines = append(a.baselines, w.Clone())
}

// Capture appends a new generation of deep copies.
func (a *Archive) Capture(generation []Weights) {
	copied := make([]Weights, 0, len(generation))
	for _, w := range generation {
		copied = append(copied, w.Clone())
	}
	a.generations = append(a.generations, copied)
}

func (a *Archive) Len() int { return len(a.generations) }

// Generation returns the captured weights at index i. The returned slice
// aliases archive storage; callers must not mutate it.
func (a *Archive) Generation(i int) []Weights {
	if i < 0 || i >= len(a.generations) {
		return nil
	}
	return a.generations[i]
}

func (a *Archive) Baselines() []Weights {
	return a.baselines
}

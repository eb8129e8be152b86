package population

// Weights is an opaque policy weight payload keyed by layer name. The trainer
// owns the interpretation; this package only needs deep copies and structural
// equality.
type Weights map[string][]float64

// Clone returns a deep copy that is independent of later mutation.
func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for key, values := range w {
		out[key] = append([]float64(nil), values...)
	}
	return out
}

// Equal reports structural equality: same keys, same values in order.
func (w Weights) Equal(other Weights) bool {
	if len(w) != len(other) {
		return false
	}
	for key, values := range w {
		otherValues, ok := other[key]
		if !ok || len(values) != len(otherValues) {
			return false
		}
		for i := range values {
			if values[i] != otherValues[i] {
				return false
			}
		}
	}
	return true
}

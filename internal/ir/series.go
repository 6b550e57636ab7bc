package ir

// LabeledSeries pairs unique numeric labels with numeric (or null) results.
// Results[i] belongs to Labels[i]; a nil entry means "no value".
type LabeledSeries struct {
	Labels  []float64  `json:"labels"`
	Results []*float64 `json:"results"`
}

// At returns the result stored for label, or nil if the label is absent
// or has no value.
func (s *LabeledSeries) At(label float64) *float64 {
	if s == nil {
		return nil
	}
	for i, l := range s.Labels {
		if l == label {
			if i < len(s.Results) {
				return s.Results[i]
			}
			return nil
		}
	}
	return nil
}

// Float returns a pointer to v. Convenience for building series literals.
func Float(v float64) *float64 {
	return &v
}

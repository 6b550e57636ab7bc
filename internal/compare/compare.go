// Package compare decides whether a computed result meets a declared
// expectation. Results are either plain strings, compared exactly, or
// labeled series, compared label by label.
package compare

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/roach88/sandcalc/internal/ir"
)

// Expected is the expectation side of a merged series.
type Expected struct {
	Results []*float64 `json:"results"`
	Matched []bool     `json:"matched"`
}

// Merged is an actual series aligned with an expectation.
// Expected is nil when there was no expectation to merge.
type Merged struct {
	Labels   []float64  `json:"labels"`
	Results  []*float64 `json:"results"`
	Expected *Expected  `json:"expected,omitempty"`
}

// Verdict is the AND of every per-label match, or nil when nothing was
// compared.
func (m Merged) Verdict() *bool {
	if m.Expected == nil || len(m.Expected.Matched) == 0 {
		return nil
	}
	ok := true
	for _, matched := range m.Expected.Matched {
		ok = ok && matched
	}
	return &ok
}

// ParseSeries decodes s as a LabeledSeries: a JSON object with a numeric
// "labels" array and an index-aligned "results" array of numbers or nulls.
func ParseSeries(s string) (*ir.LabeledSeries, bool) {
	data := bytes.TrimSpace([]byte(s))
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	rawLabels, ok := raw["labels"]
	if !ok {
		return nil, false
	}
	rawResults, ok := raw["results"]
	if !ok {
		return nil, false
	}

	var series ir.LabeledSeries
	if err := json.Unmarshal(rawLabels, &series.Labels); err != nil || series.Labels == nil {
		return nil, false
	}
	if err := json.Unmarshal(rawResults, &series.Results); err != nil || series.Results == nil {
		return nil, false
	}
	if len(series.Labels) != len(series.Results) {
		return nil, false
	}
	return &series, true
}

// MergeExpected aligns actual with expected over the sorted union of their
// labels.
//
// A label matches when no expectation is stated for it or both values are
// equal. The merged result is the actual value, or the expected value when
// the actual one is missing. A nil expected returns actual unchanged with
// a nil Expected.
func MergeExpected(actual, expected *ir.LabeledSeries) Merged {
	if expected == nil {
		if actual == nil {
			return Merged{}
		}
		return Merged{Labels: actual.Labels, Results: actual.Results}
	}

	labels := unionLabels(actual, expected)
	out := Merged{
		Labels:  labels,
		Results: make([]*float64, len(labels)),
		Expected: &Expected{
			Results: make([]*float64, len(labels)),
			Matched: make([]bool, len(labels)),
		},
	}

	for i, label := range labels {
		a := actual.At(label)
		e := expected.At(label)

		out.Expected.Results[i] = e
		out.Expected.Matched[i] = e == nil || (a != nil && *a == *e)
		if a == nil && e != nil {
			out.Results[i] = e
		} else {
			out.Results[i] = a
		}
	}
	return out
}

func unionLabels(series ...*ir.LabeledSeries) []float64 {
	seen := make(map[float64]struct{})
	var labels []float64
	for _, s := range series {
		if s == nil {
			continue
		}
		for _, l := range s.Labels {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			labels = append(labels, l)
		}
	}
	sort.Float64s(labels)
	return labels
}

// CompareToExpectation reports whether result meets expected.
//
// When neither side is a series the raw strings must be equal; an empty
// expected string yields nil (no verdict). When either side is a series,
// the non-series side counts as empty and the verdict is the AND of the
// per-label matches, or nil if there was nothing to compare.
func CompareToExpectation(result, expected string) *bool {
	actualSeries, actualOK := ParseSeries(result)
	expectedSeries, expectedOK := ParseSeries(expected)

	if !actualOK && !expectedOK {
		if expected == "" {
			return nil
		}
		eq := result == expected
		return &eq
	}

	if !actualOK {
		actualSeries = &ir.LabeledSeries{}
	}
	if !expectedOK {
		expectedSeries = nil
	}
	return MergeExpected(actualSeries, expectedSeries).Verdict()
}

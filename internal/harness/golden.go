package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sandcalc/internal/ir"
	"github.com/roach88/sandcalc/internal/testutil"
)

// GoldenDraftToken is the draft id used for suites run by RunWithGolden.
const GoldenDraftToken = "golden-draft"

// snapshot converts a result to a map[string]any for canonical JSON
// serialization. Timings and the definition are left out so snapshots only
// change when outcomes do.
func snapshot(r *Result) map[string]any {
	scenarios := make([]any, len(r.Scenarios))
	for i, sc := range r.Scenarios {
		m := map[string]any{
			"call":    sc.Call,
			"verdict": string(sc.Verdict),
		}
		if sc.Description != "" {
			m["description"] = sc.Description
		}
		if sc.Result != nil {
			m["result"] = *sc.Result
		}
		if sc.Error != nil {
			m["error"] = *sc.Error
		}
		if sc.Expected != "" {
			m["expected"] = sc.Expected
		}
		if sc.Series != nil {
			m["series"] = seriesSnapshot(sc.Series.Labels, sc.Series.Results)
		}
		scenarios[i] = m
	}

	out := map[string]any{
		"suite":     r.Suite,
		"pass":      r.Pass,
		"scenarios": scenarios,
	}
	if len(r.Errors) > 0 {
		errs := make([]any, len(r.Errors))
		for i, e := range r.Errors {
			errs[i] = e
		}
		out["errors"] = errs
	}
	return out
}

func seriesSnapshot(labels []float64, results []*float64) map[string]any {
	ls := make([]any, len(labels))
	for i, l := range labels {
		ls[i] = l
	}
	rs := make([]any, len(results))
	for i, r := range results {
		if r != nil {
			rs[i] = *r
		}
	}
	return map[string]any{"labels": ls, "results": rs}
}

// Snapshot returns the canonical JSON form of result compared by golden
// files.
func Snapshot(result *Result) ([]byte, error) {
	return ir.MarshalCanonical(snapshot(result))
}

// RunWithGolden runs suite on a fresh boundary and compares the outcome
// against testdata/golden/{suite.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, suite *Suite) (*Result, error) {
	t.Helper()

	clock := testutil.NewDeterministicClock()
	result, err := RunIsolated(context.Background(), suite,
		WithNow(clock.Now),
		WithTempIDGenerator(testutil.NewFixedTempIDGenerator(GoldenDraftToken)),
	)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, suite.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the suite.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

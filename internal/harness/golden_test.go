package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Add(t *testing.T) {
	suite, err := LoadSuite("testdata/suites/add.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, suite)
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestSnapshot_OmitsEmptyFields(t *testing.T) {
	msg := "boom"
	r := NewResult("s")
	r.Scenarios = append(r.Scenarios, ScenarioResult{Call: "f()", Error: &msg, Verdict: VerdictError})
	r.AddError("scenario 0: boom")

	snap := snapshot(r)
	assert.Equal(t, false, snap["pass"])
	assert.Equal(t, []any{"scenario 0: boom"}, snap["errors"])

	scenarios := snap["scenarios"].([]any)
	require.Len(t, scenarios, 1)
	assert.Equal(t, map[string]any{
		"call":    "f()",
		"error":   "boom",
		"verdict": "error",
	}, scenarios[0])
}

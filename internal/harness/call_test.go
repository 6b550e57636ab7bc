package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandcalc/internal/ir"
)

func TestBuildCall_Positional(t *testing.T) {
	args := []ir.FunctionArgument{{Name: "a"}, {Name: "b", DefaultValue: "10"}}
	sc := ir.Scenario{Values: map[string]ir.ScenarioValue{
		"b": {Value: "2"},
		"a": {Value: "1"},
	}}

	call, err := BuildCall("(a, b = 10) => a + b", args, sc)
	require.NoError(t, err)
	assert.Equal(t, "((a, b = 10) => a + b)((1), (2))", call)
}

func TestBuildCall_MissingValueIsUndefined(t *testing.T) {
	args := []ir.FunctionArgument{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	sc := ir.Scenario{Values: map[string]ir.ScenarioValue{
		"b": {Value: "'x'"},
		"c": {Value: "  "},
	}}

	call, err := BuildCall("(a, b, c) => b", args, sc)
	require.NoError(t, err)
	assert.Equal(t, "((a, b, c) => b)(undefined, ('x'), undefined)", call)
}

func TestBuildCall_EmptyFunction(t *testing.T) {
	_, err := BuildCall("  ", nil, ir.Scenario{})
	assert.ErrorIs(t, err, ErrEmptyFunction)
}

func TestBuildCall_IterateOver(t *testing.T) {
	args := []ir.FunctionArgument{{Name: "x"}, {Name: "k"}}
	sc := ir.Scenario{Values: map[string]ir.ScenarioValue{
		"x": {Value: "[1, 2]", Usage: ir.UsageIterateOver},
		"k": {Value: "3"},
	}}

	call, err := BuildCall("(x, k) => x * k", args, sc)
	require.NoError(t, err)

	want := "((__fn, __labels) => {\n" +
		"  if (!Array.isArray(__labels)) {\n" +
		"    throw new TypeError(\"x must be an array to iterate over\");\n" +
		"  }\n" +
		"  return {\n" +
		"    labels: __labels,\n" +
		"    results: __labels.map((__x) => {\n" +
		"      const __r = __fn(__x, (3));\n" +
		"      return typeof __r === \"number\" && isFinite(__r) ? __r : null;\n" +
		"    }),\n" +
		"  };\n" +
		"})((x, k) => x * k, ([1, 2]))"
	assert.Equal(t, want, call)
}

func TestBuildCall_IterateOverUnknownArgument(t *testing.T) {
	sc := ir.Scenario{Values: map[string]ir.ScenarioValue{
		"y": {Value: "[1]", Usage: ir.UsageIterateOver},
	}}

	_, err := BuildCall("(x) => x", []ir.FunctionArgument{{Name: "x"}}, sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"y"`)
}

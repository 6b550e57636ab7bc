package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentFingerprintDeterminism(t *testing.T) {
	c := Component{
		ID:            NewComponentID(1, 1),
		Kind:          KindValue,
		Source:        "42 + dep_2_v1",
		DependencyIDs: []ComponentID{NewComponentID(2, 1)},
	}

	fp1, err := ComponentFingerprint(c)
	require.NoError(t, err)
	fp2, err := ComponentFingerprint(c)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "fingerprint must be deterministic")
	assert.Len(t, fp1, 64, "SHA-256 hex is 64 characters")
}

func TestComponentFingerprintIgnoresComputedResult(t *testing.T) {
	result := "44"
	a := Component{Kind: KindValue, Source: "44"}
	b := a
	b.ComputedResult = &result

	assert.Equal(t, MustComponentFingerprint(a), MustComponentFingerprint(b))
}

func TestComponentFingerprintChangesWithInput(t *testing.T) {
	base := Component{Kind: KindFunction, Source: "x + 1", Arguments: []FunctionArgument{{Name: "x"}}}

	source := base
	source.Source = "x + 2"

	args := base
	args.Arguments = []FunctionArgument{{Name: "x", DefaultValue: "0"}}

	deps := base
	deps.DependencyIDs = []ComponentID{NewComponentID(9, 1)}

	kind := base
	kind.Kind = KindValue

	fp := MustComponentFingerprint(base)
	assert.NotEqual(t, fp, MustComponentFingerprint(source))
	assert.NotEqual(t, fp, MustComponentFingerprint(args))
	assert.NotEqual(t, fp, MustComponentFingerprint(deps))
	assert.NotEqual(t, fp, MustComponentFingerprint(kind))
}

func TestComponentFingerprintDefaultKind(t *testing.T) {
	a := Component{Source: "1"}
	b := Component{Kind: KindValue, Source: "1"}
	assert.Equal(t, MustComponentFingerprint(a), MustComponentFingerprint(b))
}

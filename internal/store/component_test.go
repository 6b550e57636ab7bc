package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandcalc/internal/engine"
	"github.com/roach88/sandcalc/internal/ir"
)

// Store satisfies the engine's read-only lookup contract.
var _ engine.ComponentStore = (*Store)(nil)

func strPtr(s string) *string { return &s }

func valueComponent(id, version int64, source string, deps ...ir.ComponentID) ir.Component {
	return ir.Component{
		ID:            ir.NewComponentID(id, version),
		Kind:          ir.KindValue,
		Source:        source,
		DependencyIDs: deps,
	}
}

func TestPut_GetRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	base := valueComponent(1, 1, "2")
	base.Name = "two"
	base.ComputedResult = strPtr("2")
	require.NoError(t, s.Put(ctx, base))

	fn := ir.Component{
		ID:        ir.NewComponentID(2, 1),
		Name:      "clamp",
		Kind:      ir.KindFunction,
		Source:    "Math.max(value, min)",
		Arguments: []ir.FunctionArgument{{Name: "min", DefaultValue: "0"}, {Name: "value"}},
		Scenarios: []ir.Scenario{{
			Description:    "negative",
			Values:         map[string]ir.ScenarioValue{"value": {Value: "-3"}},
			ExpectedResult: "0",
		}},
		DependencyIDs: []ir.ComponentID{base.ID},
	}
	require.NoError(t, s.Put(ctx, fn))

	got, ok, err := s.Get(ctx, fn.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fn, got)

	got, ok, err = s.Get(ctx, base.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.ComputedResult)
	assert.Equal(t, "2", *got.ComputedResult)
	assert.Nil(t, got.DependencyIDs)
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.Get(context.Background(), ir.NewComponentID(42, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(context.Background(), ir.NewTempComponentID("draft"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPut_SameContentIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := valueComponent(1, 1, "1 + 1")
	c.ComputedResult = strPtr("2")
	require.NoError(t, s.Put(ctx, c))

	// Computed result is not part of the fingerprint; the first one is kept.
	c.ComputedResult = strPtr("3")
	require.NoError(t, s.Put(ctx, c))

	got, _, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", *got.ComputedResult)
}

func TestPut_VersionIsImmutable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, valueComponent(1, 1, "1 + 1")))

	err := s.Put(ctx, valueComponent(1, 1, "1 + 2"))
	require.ErrorIs(t, err, ErrVersionImmutable)

	// A new version is fine.
	require.NoError(t, s.Put(ctx, valueComponent(1, 2, "1 + 2")))
}

func TestPut_RejectsTemporaryIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	draft := ir.NewDraftComponent(ir.NewFixedGenerator("tok"), ir.KindValue, "1")
	require.ErrorIs(t, s.Put(ctx, draft), ErrTemporaryID)

	c := valueComponent(1, 1, "x", ir.NewTempComponentID("tok"))
	require.ErrorIs(t, s.Put(ctx, c), ErrTemporaryID)
}

func TestPut_RequiresStoredDependencies(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Put(ctx, valueComponent(2, 1, "dep_1_v1", ir.NewComponentID(1, 1)))
	require.ErrorIs(t, err, ErrUnknownDependency)

	// Self reference can never be satisfied.
	err = s.Put(ctx, valueComponent(3, 1, "x", ir.NewComponentID(3, 1)))
	require.ErrorIs(t, err, ErrUnknownDependency)

	_, ok, err := s.Get(ctx, ir.NewComponentID(2, 1))
	require.NoError(t, err)
	assert.False(t, ok, "failed put must not leave a row")
}

func TestPutAll_OrdersByDependency(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := valueComponent(1, 1, "1")
	b := valueComponent(2, 1, "dep_1_v1 + 1", a.ID)
	c := valueComponent(3, 1, "dep_2_v1 + dep_1_v1", b.ID, a.ID)

	require.NoError(t, s.PutAll(ctx, []ir.Component{c, b, a}))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []ir.ComponentID{b.ID, a.ID}, all[2].DependencyIDs, "declaration order is kept")
}

func TestPutAll_AtomicOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := valueComponent(1, 1, "1")
	orphan := valueComponent(2, 1, "x", ir.NewComponentID(9, 9))

	err := s.PutAll(ctx, []ir.Component{a, orphan})
	require.ErrorIs(t, err, ErrUnknownDependency)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDependencyOrder_Cycle(t *testing.T) {
	a := valueComponent(1, 1, "x", ir.NewComponentID(2, 1))
	b := valueComponent(2, 1, "y", ir.NewComponentID(1, 1))

	_, err := DependencyOrder([]ir.Component{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestList_EmptyAndOrdered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	require.NoError(t, s.Put(ctx, valueComponent(5, 1, "5")))
	require.NoError(t, s.Put(ctx, valueComponent(1, 2, "1")))
	require.NoError(t, s.Put(ctx, valueComponent(1, 1, "1")))

	all, err = s.List(ctx)
	require.NoError(t, err)
	var keys []string
	for _, c := range all {
		keys = append(keys, c.ID.Key())
	}
	assert.Equal(t, []string{"1@1", "1@2", "5@1"}, keys)
}

func TestLatestAndDependents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, valueComponent(1, 1, "1")))
	require.NoError(t, s.Put(ctx, valueComponent(1, 2, "2")))
	require.NoError(t, s.Put(ctx, valueComponent(2, 1, "dep_1_v1", ir.NewComponentID(1, 1))))

	latest, ok, err := s.Latest(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), latest.ID.Version)

	_, ok, err = s.Latest(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)

	deps, err := s.Dependents(ctx, ir.NewComponentID(1, 1))
	require.NoError(t, err)
	assert.Equal(t, []ir.ComponentID{ir.NewComponentID(2, 1)}, deps)

	deps, err = s.Dependents(ctx, ir.NewComponentID(1, 2))
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestCollectDependencyValues_FromStore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := valueComponent(-1, 1, "2")
	a.ComputedResult = strPtr("2")
	require.NoError(t, s.Put(ctx, a))

	c := valueComponent(7, 1, "42 + dep_n1_v1", a.ID)
	values, err := engine.CollectDependencyValues(ctx, s, c)
	require.NoError(t, err)

	injection, err := engine.BuildInjection(c, values)
	require.NoError(t, err)
	assert.Equal(t, `__bind("dep_n1_v1", __deepFreeze(2));`+"\n", injection)
}

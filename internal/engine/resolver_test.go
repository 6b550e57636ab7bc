package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandcalc/internal/ir"
)

func TestDependencyIdentifier(t *testing.T) {
	assert.Equal(t, "dep_n1_v1", DependencyIdentifier(ir.NewComponentID(-1, 1)))
	assert.Equal(t, "dep_12_v3", DependencyIdentifier(ir.NewComponentID(12, 3)))
	assert.NotEqual(t,
		DependencyIdentifier(ir.NewComponentID(12, 3)),
		DependencyIdentifier(ir.NewComponentID(12, 4)),
		"identifier must depend on the version",
	)
}

func TestBuildInjection_NoDependencies(t *testing.T) {
	got, err := BuildInjection(ir.Component{Source: "1"}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuildInjection_Literals(t *testing.T) {
	a := ir.NewComponentID(-1, 1)
	b := ir.NewComponentID(2, 1)
	c := ir.NewComponentID(3, 1)
	d := ir.NewComponentID(4, 2)

	values := DependencyValues{}
	values.Set(a, "2")
	values.Set(b, `{"a":[1,2],"b":1}`)
	values.Set(c, `"hello"`)
	values.SetUncomputed(d)

	comp := ir.Component{ID: ir.NewComponentID(9, 1), DependencyIDs: []ir.ComponentID{a, b, c, d}}

	got, err := BuildInjection(comp, values)
	require.NoError(t, err)

	want := `__bind("dep_n1_v1", __deepFreeze((2)));` + "\n" +
		`__bind("dep_2_v1", __deepFreeze(({"a":[1,2],"b":1})));` + "\n" +
		`__bind("dep_3_v1", __deepFreeze(("hello")));` + "\n" +
		`__bind("dep_4_v2", __deepFreeze(undefined));` + "\n"
	assert.Equal(t, want, got)
}

func TestBuildInjection_FunctionSourceIsCallable(t *testing.T) {
	dep := ir.NewComponentID(1, 1)
	values := DependencyValues{}
	values.Set(dep, "(x) => x * 2")

	got, err := BuildInjection(ir.Component{DependencyIDs: []ir.ComponentID{dep}}, values)
	require.NoError(t, err)
	assert.Equal(t, `__bind("dep_1_v1", __deepFreeze(((x) => x * 2)));`+"\n", got)
}

func TestBuildInjection_QuotedStringStaysString(t *testing.T) {
	dep := ir.NewComponentID(1, 1)
	values := DependencyValues{}
	values.Set(dep, `"42"`)

	got, err := BuildInjection(ir.Component{DependencyIDs: []ir.ComponentID{dep}}, values)
	require.NoError(t, err)
	assert.Equal(t, `__bind("dep_1_v1", __deepFreeze(("42")));`+"\n", got)
}

func TestBuildInjection_BlankResultIsUndefined(t *testing.T) {
	dep := ir.NewComponentID(1, 1)
	values := DependencyValues{}
	values.Set(dep, "  ")

	got, err := BuildInjection(ir.Component{DependencyIDs: []ir.ComponentID{dep}}, values)
	require.NoError(t, err)
	assert.Equal(t, `__bind("dep_1_v1", __deepFreeze(undefined));`+"\n", got)
}

func TestBuildInjection_MissingReportsAggregateCounts(t *testing.T) {
	deps := []ir.ComponentID{ir.NewComponentID(1, 1), ir.NewComponentID(2, 1), ir.NewComponentID(3, 1)}
	values := DependencyValues{}
	values.Set(deps[0], "1")
	values.Set(deps[2], "3")

	_, err := BuildInjection(ir.Component{ID: ir.NewComponentID(4, 1), DependencyIDs: deps}, values)
	require.Error(t, err)
	assert.True(t, IsMissingDependency(err))

	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, "Expected 3 dependencies but got 2", engErr.Message)
	assert.Equal(t, "2@1", engErr.Details["first_missing"])
}

func TestBuildInjection_WrongVersionIsMissing(t *testing.T) {
	values := DependencyValues{}
	values.Set(ir.NewComponentID(1, 1), "1")

	_, err := BuildInjection(ir.Component{DependencyIDs: []ir.ComponentID{ir.NewComponentID(1, 2)}}, values)
	assert.True(t, IsMissingDependency(err))
}

func TestBuildInjection_TemporaryDependency(t *testing.T) {
	tmp := ir.NewTempComponentID("0190a4a0-0000-7000-8000-000000000000")
	values := DependencyValues{tmp.Key(): nil}

	_, err := BuildInjection(ir.Component{DependencyIDs: []ir.ComponentID{tmp}}, values)
	require.Error(t, err)

	var engErr *Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, ErrCodeTemporaryDependency, engErr.Code)
	assert.NotContains(t, err.Error(), "0190a4a0")
}

type mapStore struct {
	mu    sync.Mutex
	items map[string]ir.Component
	calls int
	err   error
}

func (s *mapStore) Get(_ context.Context, id ir.ComponentID) (ir.Component, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return ir.Component{}, false, s.err
	}
	c, ok := s.items[id.Key()]
	return c, ok, nil
}

func TestCollectDependencyValues(t *testing.T) {
	two := "2"
	s := &mapStore{items: map[string]ir.Component{
		"1@1": {ID: ir.NewComponentID(1, 1), ComputedResult: &two},
		"2@1": {ID: ir.NewComponentID(2, 1)},
	}}
	comp := ir.Component{DependencyIDs: []ir.ComponentID{
		ir.NewComponentID(1, 1),
		ir.NewComponentID(2, 1),
		ir.NewComponentID(3, 1),
		ir.NewTempComponentID("draft"),
	}}

	values, err := CollectDependencyValues(context.Background(), s, comp)
	require.NoError(t, err)

	require.Contains(t, values, "1@1")
	assert.Equal(t, "2", *values["1@1"])
	require.Contains(t, values, "2@1")
	assert.Nil(t, values["2@1"])
	assert.NotContains(t, values, "3@1")
	assert.Equal(t, 3, s.calls, "temporary ids are never looked up")

	_, err = BuildInjection(comp, values)
	assert.Error(t, err)
}

func TestCollectDependencyValues_StoreError(t *testing.T) {
	s := &mapStore{err: errors.New("disk on fire")}
	comp := ir.Component{DependencyIDs: []ir.ComponentID{ir.NewComponentID(1, 1)}}

	_, err := CollectDependencyValues(context.Background(), s, comp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Contains(t, err.Error(), "1@1")
}

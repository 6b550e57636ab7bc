package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// ComponentID identifies one immutable version of a data component.
//
// Persisted components carry ID and Version (Version >= 1). Drafts that were
// never saved carry only Temp, a generated token (see TempIDGenerator).
// A temporary id must never be rendered into sandboxed source.
type ComponentID struct {
	ID      int64  `json:"id" yaml:"id"`
	Version int64  `json:"version" yaml:"version"`
	Temp    string `json:"temp_id,omitempty" yaml:"temp_id,omitempty"`
}

// NewComponentID returns a persisted component id.
func NewComponentID(id, version int64) ComponentID {
	return ComponentID{ID: id, Version: version}
}

// NewTempComponentID returns a draft id.
func NewTempComponentID(token string) ComponentID {
	return ComponentID{Temp: token}
}

// IsTemporary reports whether the id belongs to an unsaved draft.
func (c ComponentID) IsTemporary() bool {
	return c.Temp != ""
}

// Key returns the lookup key used in dependency value maps: "<id>@<version>".
// Temporary ids use "tmp:<token>" so they can never collide with a persisted key.
func (c ComponentID) Key() string {
	if c.IsTemporary() {
		return "tmp:" + c.Temp
	}
	return fmt.Sprintf("%d@%d", c.ID, c.Version)
}

// String implements fmt.Stringer.
func (c ComponentID) String() string {
	return c.Key()
}

// ParseComponentID parses the "<id>@<version>" form produced by Key.
func ParseComponentID(s string) (ComponentID, error) {
	idPart, versionPart, ok := strings.Cut(s, "@")
	if !ok {
		return ComponentID{}, fmt.Errorf("invalid component id %q: expected <id>@<version>", s)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return ComponentID{}, fmt.Errorf("invalid component id %q: %w", s, err)
	}
	version, err := strconv.ParseInt(versionPart, 10, 64)
	if err != nil {
		return ComponentID{}, fmt.Errorf("invalid component version %q: %w", s, err)
	}
	if version < 1 {
		return ComponentID{}, fmt.Errorf("invalid component version %q: must be >= 1", s)
	}
	return ComponentID{ID: id, Version: version}, nil
}

// ComponentKind distinguishes plain value formulas from function definitions.
type ComponentKind string

const (
	// KindValue is a formula whose evaluation result is the component's value.
	KindValue ComponentKind = "value"
	// KindFunction is a formula body plus an ordered argument list.
	KindFunction ComponentKind = "function"
)

// Component is a versioned unit holding a formula and, once evaluated
// elsewhere, its computed result.
//
// Source is plain executable text; conversion from any authoring format
// happens before it reaches this package.
type Component struct {
	ID             ComponentID        `json:"id" yaml:"id"`
	Name           string             `json:"name,omitempty" yaml:"name,omitempty"`
	Kind           ComponentKind      `json:"kind" yaml:"kind"`
	Source         string             `json:"source" yaml:"source"`
	Arguments      []FunctionArgument `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	ComputedResult *string            `json:"computed_result,omitempty" yaml:"computed_result,omitempty"`
	DependencyIDs  []ComponentID      `json:"dependency_ids,omitempty" yaml:"dependency_ids,omitempty"`
	Scenarios      []Scenario         `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`
}

// IsFunction reports whether the component is a function definition.
func (c Component) IsFunction() bool {
	return c.Kind == KindFunction
}

// FunctionArgument is one positional parameter of a function component.
// Order within the argument list defines the call signature.
type FunctionArgument struct {
	Name         string `json:"name" yaml:"name" validate:"required"`
	DefaultValue string `json:"default_value,omitempty" yaml:"default_value,omitempty"`
}

// UsageIterateOver marks a scenario value as the array a function is mapped over.
const UsageIterateOver = "iterate_over"

// ScenarioValue is the value supplied for one argument in a scenario.
// Value is source text (e.g. "3", "[1,2,3]", "'abc'").
type ScenarioValue struct {
	Value string `json:"value" yaml:"value"`
	Usage string `json:"usage,omitempty" yaml:"usage,omitempty" validate:"omitempty,oneof=iterate_over"`
}

// Scenario is a named set of argument values used to exercise a function
// component against an expected result.
type Scenario struct {
	Description    string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Values         map[string]ScenarioValue `json:"values" yaml:"values"`
	ExpectedResult string                   `json:"expected_result,omitempty" yaml:"expected_result,omitempty"`
}

// IterateOver returns the argument name marked iterate_over, if any.
func (s Scenario) IterateOver() (string, bool) {
	for name, v := range s.Values {
		if v.Usage == UsageIterateOver {
			return name, true
		}
	}
	return "", false
}

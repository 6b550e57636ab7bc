package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sandcalc/internal/ir"
)

// CompileComponents compiles every entry of the top-level "component" struct,
// in declaration order. Returns an empty slice if the struct is absent.
func CompileComponents(v cue.Value) ([]ir.Component, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	compVal := v.LookupPath(cue.ParsePath("component"))
	if !compVal.Exists() {
		return []ir.Component{}, nil
	}

	iter, err := compVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	components := []ir.Component{}
	for iter.Next() {
		c, err := CompileComponent(iter.Value())
		if err != nil {
			return nil, err
		}
		components = append(components, *c)
	}
	return components, nil
}

// CompileComponent parses a CUE value into a Component.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the component struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`component: clamp: { ... }`)
//	c, err := CompileComponent(v.LookupPath(cue.ParsePath("component.clamp")))
func CompileComponent(v cue.Value) (*ir.Component, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	c := &ir.Component{Kind: ir.KindValue}

	// Component name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		c.Name = labels[len(labels)-1].String()
	}

	id, err := requiredInt(v, "id")
	if err != nil {
		return nil, err
	}
	version, err := requiredInt(v, "version")
	if err != nil {
		return nil, err
	}
	c.ID = ir.NewComponentID(id, version)

	sourceVal := v.LookupPath(cue.ParsePath("source"))
	if !sourceVal.Exists() {
		return nil, &CompileError{Field: "source", Message: "source is required", Pos: v.Pos()}
	}
	if c.Source, err = sourceVal.String(); err != nil {
		return nil, formatCUEError(err)
	}

	if kindVal := v.LookupPath(cue.ParsePath("kind")); kindVal.Exists() {
		kind, err := kindVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		c.Kind = ir.ComponentKind(kind)
	}

	if c.Arguments, err = parseArguments(v); err != nil {
		return nil, err
	}
	if c.DependencyIDs, err = parseDependencies(v); err != nil {
		return nil, err
	}

	if resultVal := v.LookupPath(cue.ParsePath("computed_result")); resultVal.Exists() {
		result, err := resultVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		c.ComputedResult = &result
	}

	if c.Scenarios, err = parseScenarios(v); err != nil {
		return nil, err
	}

	return c, nil
}

func requiredInt(v cue.Value, field string) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be an integer", Pos: fv.Pos()}
	}
	return n, nil
}

// parseArguments extracts the ordered argument list.
// Each entry is either a bare name string or {name, default?}.
func parseArguments(v cue.Value) ([]ir.FunctionArgument, error) {
	argsVal := v.LookupPath(cue.ParsePath("arguments"))
	if !argsVal.Exists() {
		return nil, nil
	}

	iter, err := argsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var args []ir.FunctionArgument
	for iter.Next() {
		item := iter.Value()

		if name, err := item.String(); err == nil {
			args = append(args, ir.FunctionArgument{Name: name})
			continue
		}

		nameVal := item.LookupPath(cue.ParsePath("name"))
		if !nameVal.Exists() {
			return nil, &CompileError{
				Field:   "arguments",
				Message: "argument must be a string or object with name field",
				Pos:     item.Pos(),
			}
		}
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arg := ir.FunctionArgument{Name: name}

		if defVal := item.LookupPath(cue.ParsePath("default")); defVal.Exists() {
			if arg.DefaultValue, err = sourceText(defVal); err != nil {
				return nil, err
			}
		}
		args = append(args, arg)
	}
	return args, nil
}

// parseDependencies extracts pinned dependency ids.
// Each entry is "<id>@<version>" or {id, version}.
func parseDependencies(v cue.Value) ([]ir.ComponentID, error) {
	depsVal := v.LookupPath(cue.ParsePath("dependencies"))
	if !depsVal.Exists() {
		return nil, nil
	}

	iter, err := depsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var deps []ir.ComponentID
	for iter.Next() {
		item := iter.Value()

		if s, err := item.String(); err == nil {
			id, err := ir.ParseComponentID(s)
			if err != nil {
				return nil, &CompileError{Field: "dependencies", Message: err.Error(), Pos: item.Pos()}
			}
			deps = append(deps, id)
			continue
		}

		id, err := requiredInt(item, "id")
		if err != nil {
			return nil, err
		}
		version, err := requiredInt(item, "version")
		if err != nil {
			return nil, err
		}
		deps = append(deps, ir.NewComponentID(id, version))
	}
	return deps, nil
}

// parseScenarios extracts test scenarios. Scenario values are either source
// text or {value, usage?}.
func parseScenarios(v cue.Value) ([]ir.Scenario, error) {
	scVal := v.LookupPath(cue.ParsePath("scenarios"))
	if !scVal.Exists() {
		return nil, nil
	}

	iter, err := scVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var scenarios []ir.Scenario
	for iter.Next() {
		item := iter.Value()
		sc := ir.Scenario{Values: map[string]ir.ScenarioValue{}}

		if descVal := item.LookupPath(cue.ParsePath("description")); descVal.Exists() {
			if sc.Description, err = descVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if expVal := item.LookupPath(cue.ParsePath("expected")); expVal.Exists() {
			if sc.ExpectedResult, err = sourceText(expVal); err != nil {
				return nil, err
			}
		}

		if valuesVal := item.LookupPath(cue.ParsePath("values")); valuesVal.Exists() {
			fields, err := valuesVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for fields.Next() {
				sv, err := parseScenarioValue(fields.Value())
				if err != nil {
					return nil, err
				}
				sc.Values[fields.Label()] = sv
			}
		}

		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func parseScenarioValue(v cue.Value) (ir.ScenarioValue, error) {
	if v.IncompleteKind() == cue.StructKind {
		valueVal := v.LookupPath(cue.ParsePath("value"))
		if !valueVal.Exists() {
			return ir.ScenarioValue{}, &CompileError{
				Field:   "values",
				Message: "scenario value object requires a value field",
				Pos:     v.Pos(),
			}
		}
		text, err := sourceText(valueVal)
		if err != nil {
			return ir.ScenarioValue{}, err
		}
		sv := ir.ScenarioValue{Value: text}
		if usageVal := v.LookupPath(cue.ParsePath("usage")); usageVal.Exists() {
			if sv.Usage, err = usageVal.String(); err != nil {
				return ir.ScenarioValue{}, formatCUEError(err)
			}
		}
		return sv, nil
	}

	text, err := sourceText(v)
	if err != nil {
		return ir.ScenarioValue{}, err
	}
	return ir.ScenarioValue{Value: text}, nil
}

// sourceText renders a CUE value as formula source text. Strings are taken
// verbatim; numbers, booleans, lists and structs are rendered as JSON.
func sourceText(v cue.Value) (string, error) {
	if s, err := v.String(); err == nil {
		return s, nil
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return "", formatCUEError(err)
	}
	canon, err := ir.CanonicalizeJSON(data)
	if err != nil {
		return "", &CompileError{Field: "value", Message: err.Error(), Pos: v.Pos()}
	}
	return string(canon), nil
}

// ScenarioArgumentNames returns the argument names used by a scenario,
// sorted for deterministic output.
func ScenarioArgumentNames(s ir.Scenario) []string {
	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

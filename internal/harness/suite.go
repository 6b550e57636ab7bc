package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sandcalc/internal/ir"
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	validate          = validator.New()
)

// Suite is a function component together with the scenarios that exercise it.
type Suite struct {
	// Name identifies the suite and names its golden file.
	Name string `yaml:"name" validate:"required"`

	// Description explains what the suite covers.
	Description string `yaml:"description"`

	// Component is the function under test.
	Component FunctionSpec `yaml:"component"`

	// Scenarios are evaluated in order.
	Scenarios []ScenarioSpec `yaml:"scenarios" validate:"min=1"`

	// Path is the file the suite was loaded from.
	Path string `yaml:"-"`
}

// FunctionSpec declares the function under test.
type FunctionSpec struct {
	Arguments []ArgumentSpec `yaml:"arguments"`
	Body      string         `yaml:"body" validate:"required"`
}

// ArgumentSpec is a positional argument: either a bare name or
// {name, default}.
type ArgumentSpec struct {
	Name    string
	Default string
}

// UnmarshalYAML accepts a scalar name or a {name, default} mapping.
func (a *ArgumentSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		a.Name = node.Value
		return nil
	}
	if err := checkKeys(node, "name", "default"); err != nil {
		return err
	}
	var raw struct {
		Name    string `yaml:"name"`
		Default string `yaml:"default"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	a.Name = raw.Name
	a.Default = raw.Default
	return nil
}

// ScenarioSpec is one set of argument values and the expected result.
type ScenarioSpec struct {
	Description string               `yaml:"description"`
	Values      map[string]ValueSpec `yaml:"values"`
	Expected    SourceText           `yaml:"expected"`
}

// ValueSpec is the value of one argument: either source text or
// {value, usage}.
type ValueSpec struct {
	Value string
	Usage string
}

// UnmarshalYAML accepts source text or a {value, usage} mapping.
func (v *ValueSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		text, err := sourceText(node)
		if err != nil {
			return err
		}
		v.Value = text
		return nil
	}
	if err := checkKeys(node, "value", "usage"); err != nil {
		return err
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "value":
			text, err := sourceText(val)
			if err != nil {
				return err
			}
			v.Value = text
		case "usage":
			v.Usage = val.Value
		}
	}
	return nil
}

// SourceText is a YAML scalar taken verbatim, or a sequence or mapping
// rendered as canonical JSON.
type SourceText string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SourceText) UnmarshalYAML(node *yaml.Node) error {
	text, err := sourceText(node)
	if err != nil {
		return err
	}
	*s = SourceText(text)
	return nil
}

func sourceText(node *yaml.Node) (string, error) {
	if node.Kind == yaml.ScalarNode {
		return node.Value, nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("line %d: value is not JSON-compatible: %w", node.Line, err)
	}
	canon, err := ir.CanonicalizeJSON(data)
	if err != nil {
		return "", fmt.Errorf("line %d: %w", node.Line, err)
	}
	return string(canon), nil
}

// checkKeys rejects mapping keys outside allowed, mirroring KnownFields for
// nodes decoded by hand.
func checkKeys(node *yaml.Node, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i]
		known := false
		for _, a := range allowed {
			if key.Value == a {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("line %d: field %s not found", key.Line, key.Value)
		}
	}
	return nil
}

// Arguments returns the declared arguments in order.
func (s *Suite) Arguments() []ir.FunctionArgument {
	args := make([]ir.FunctionArgument, len(s.Component.Arguments))
	for i, a := range s.Component.Arguments {
		args[i] = ir.FunctionArgument{Name: a.Name, DefaultValue: a.Default}
	}
	return args
}

// DraftComponent returns the suite's function as an unsaved component.
func (s *Suite) DraftComponent(gen ir.TempIDGenerator) ir.Component {
	c := ir.NewDraftComponent(gen, ir.KindFunction, s.Component.Body)
	c.Name = s.Name
	c.Arguments = s.Arguments()
	c.Scenarios = make([]ir.Scenario, len(s.Scenarios))
	for i, sc := range s.Scenarios {
		c.Scenarios[i] = sc.Scenario()
	}
	return c
}

// Scenario returns the IR form of sc.
func (sc ScenarioSpec) Scenario() ir.Scenario {
	values := make(map[string]ir.ScenarioValue, len(sc.Values))
	for name, v := range sc.Values {
		values[name] = ir.ScenarioValue{Value: v.Value, Usage: v.Usage}
	}
	return ir.Scenario{
		Description:    sc.Description,
		Values:         values,
		ExpectedResult: string(sc.Expected),
	}
}

// LoadSuite reads and parses a suite YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	suite, err := ParseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	suite.Path = path
	return suite, nil
}

// ParseSuite decodes and validates a suite document.
func ParseSuite(data []byte) (*Suite, error) {
	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ValidateSuite(&suite); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return &suite, nil
}

// LoadSuites loads every path concurrently. Results keep the order of paths;
// the first failure is returned.
func LoadSuites(paths []string) ([]*Suite, error) {
	suites := make([]*Suite, len(paths))

	var g errgroup.Group
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			s, err := LoadSuite(path)
			if err != nil {
				return err
			}
			suites[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return suites, nil
}

// FindSuites returns the .yaml and .yml files directly inside dir, sorted.
func FindSuites(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}

// ValidateSuite checks required fields, argument names and scenario values.
// All problems are reported together.
func ValidateSuite(s *Suite) error {
	var errs []error

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	declared := make([]string, 0, len(s.Component.Arguments))
	seen := make(map[string]bool, len(s.Component.Arguments))
	for i, arg := range s.Component.Arguments {
		if !identifierPattern.MatchString(arg.Name) {
			errs = append(errs, fmt.Errorf("component.arguments[%d]: %q is not a valid identifier", i, arg.Name))
			continue
		}
		if seen[arg.Name] {
			errs = append(errs, fmt.Errorf("component.arguments[%d]: duplicate argument %q", i, arg.Name))
			continue
		}
		seen[arg.Name] = true
		declared = append(declared, arg.Name)
	}

	for i, sc := range s.Scenarios {
		names := make([]string, 0, len(sc.Values))
		for name := range sc.Values {
			names = append(names, name)
		}
		sort.Strings(names)

		iterating := 0
		for _, name := range names {
			v := sc.Values[name]
			path := fmt.Sprintf("scenarios[%d].values.%s", i, name)
			if !seen[name] {
				msg := fmt.Sprintf("%s: no argument named %q", path, name)
				if hint := closest(name, declared); hint != "" {
					msg += fmt.Sprintf(" (did you mean %q?)", hint)
				}
				errs = append(errs, errors.New(msg))
			}
			switch v.Usage {
			case "":
			case ir.UsageIterateOver:
				iterating++
			default:
				errs = append(errs, fmt.Errorf("%s.usage: invalid usage %q, must be empty or %q", path, v.Usage, ir.UsageIterateOver))
			}
		}
		if iterating > 1 {
			errs = append(errs, fmt.Errorf("scenarios[%d].values: at most one value may use %s", i, ir.UsageIterateOver))
		}
	}

	return errors.Join(errs...)
}

// closest returns the candidate nearest to name, if any is within two edits.
func closest(name string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// fieldPath trims the root type from a validator namespace
// ("Suite.Component.Body" -> "Component.Body").
func fieldPath(ns string) string {
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return ns
}

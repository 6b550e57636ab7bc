package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/sandcalc/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// General validation errors (E200)
	ErrUnsupportedIRType = "E200" // unsupported IR type for validation

	// Identity errors (E201-E204)
	ErrInvalidVersion   = "E201" // version must be >= 1
	ErrEmptySource      = "E202" // source is required
	ErrInvalidKind      = "E203" // kind must be value or function
	ErrDuplicateVersion = "E204" // same id+version declared twice

	// Argument errors (E210-E219)
	ErrArgumentsOnValue    = "E210" // only function components take arguments
	ErrInvalidArgumentName = "E211" // argument name must be an identifier
	ErrDuplicateArgument   = "E212" // argument declared twice

	// Dependency errors (E220-E229)
	ErrSelfDependency      = "E220" // component depends on its own version
	ErrDuplicateDependency = "E221" // dependency listed twice
	ErrTemporaryDependency = "E222" // dependency on an unsaved draft
	ErrInvalidDependency   = "E223" // dependency version must be >= 1
	ErrDependencyCycle     = "E224" // components depend on each other in a loop

	// Scenario errors (E230-E239)
	ErrScenariosOnValue    = "E230" // only function components have scenarios
	ErrUnknownArgument     = "E231" // scenario value for an undeclared argument
	ErrMultipleIterateOver = "E232" // at most one iterate_over value
	ErrInvalidUsage        = "E233" // usage must be empty or iterate_over
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	validate          = validator.New()
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports Component and []Component.
func Validate(v any) []ValidationError {
	switch c := v.(type) {
	case *ir.Component:
		return validateComponent(c)
	case ir.Component:
		return validateComponent(&c)
	case []ir.Component:
		return validateComponents(c)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateComponents(components []ir.Component) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]string)
	for i := range components {
		c := &components[i]
		key := c.ID.Key()
		if prev, ok := seen[key]; ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("component.%s.version", c.Name),
				Message: fmt.Sprintf("%s is already declared by %q", key, prev),
				Code:    ErrDuplicateVersion,
			})
		}
		seen[key] = c.Name
		errs = append(errs, validateComponent(c)...)
	}
	return errs
}

// validateComponent validates a single component definition.
func validateComponent(c *ir.Component) []ValidationError {
	var errs []ValidationError
	field := func(name string) string {
		if c.Name == "" {
			return name
		}
		return fmt.Sprintf("component.%s.%s", c.Name, name)
	}

	// E201: version must be >= 1
	if c.ID.Version < 1 {
		errs = append(errs, ValidationError{
			Field:   field("version"),
			Message: fmt.Sprintf("version must be >= 1, got %d", c.ID.Version),
			Code:    ErrInvalidVersion,
		})
	}

	// E202: source is required
	if strings.TrimSpace(c.Source) == "" {
		errs = append(errs, ValidationError{
			Field:   field("source"),
			Message: "source is required and must be non-empty",
			Code:    ErrEmptySource,
		})
	}

	// E203: kind
	if c.Kind != ir.KindValue && c.Kind != ir.KindFunction {
		errs = append(errs, ValidationError{
			Field:   field("kind"),
			Message: fmt.Sprintf("invalid kind %q, must be \"value\" or \"function\"", c.Kind),
			Code:    ErrInvalidKind,
		})
	}

	errs = append(errs, validateArguments(c, field)...)
	errs = append(errs, validateDependencies(c, field)...)
	errs = append(errs, validateScenarios(c, field)...)

	return errs
}

func validateArguments(c *ir.Component, field func(string) string) []ValidationError {
	var errs []ValidationError

	// E210: only function components take arguments
	if len(c.Arguments) > 0 && !c.IsFunction() {
		errs = append(errs, ValidationError{
			Field:   field("arguments"),
			Message: "arguments are only allowed on function components",
			Code:    ErrArgumentsOnValue,
		})
	}

	names := make(map[string]bool)
	for i, arg := range c.Arguments {
		path := field(fmt.Sprintf("arguments[%d].name", i))

		// E211: identifier
		if err := validate.Struct(arg); err != nil || !identifierPattern.MatchString(arg.Name) {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("argument name %q is not a valid identifier", arg.Name),
				Code:    ErrInvalidArgumentName,
			})
		}

		// E212: duplicate
		if names[arg.Name] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("duplicate argument name: %q", arg.Name),
				Code:    ErrDuplicateArgument,
			})
		}
		names[arg.Name] = true
	}
	return errs
}

func validateDependencies(c *ir.Component, field func(string) string) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for i, dep := range c.DependencyIDs {
		path := field(fmt.Sprintf("dependencies[%d]", i))

		switch {
		case dep.IsTemporary():
			// E222
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "dependency refers to an unsaved component",
				Code:    ErrTemporaryDependency,
			})
			continue
		case dep.Version < 1:
			// E223
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("dependency version must be >= 1, got %d", dep.Version),
				Code:    ErrInvalidDependency,
			})
		case dep == c.ID:
			// E220
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("component %s depends on itself", dep),
				Code:    ErrSelfDependency,
			})
		}

		// E221
		if seen[dep.Key()] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("duplicate dependency %s", dep),
				Code:    ErrDuplicateDependency,
			})
		}
		seen[dep.Key()] = true
	}
	return errs
}

func validateScenarios(c *ir.Component, field func(string) string) []ValidationError {
	var errs []ValidationError

	// E230: only function components have scenarios
	if len(c.Scenarios) > 0 && !c.IsFunction() {
		errs = append(errs, ValidationError{
			Field:   field("scenarios"),
			Message: "scenarios are only allowed on function components",
			Code:    ErrScenariosOnValue,
		})
		return errs
	}

	declared := make(map[string]bool, len(c.Arguments))
	for _, arg := range c.Arguments {
		declared[arg.Name] = true
	}

	for i, sc := range c.Scenarios {
		iterating := 0
		for _, name := range ScenarioArgumentNames(sc) {
			sv := sc.Values[name]
			path := field(fmt.Sprintf("scenarios[%d].values.%s", i, name))

			// E231
			if !declared[name] {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("no argument named %q", name),
					Code:    ErrUnknownArgument,
				})
			}

			// E233
			if err := validate.Struct(sv); err != nil {
				errs = append(errs, ValidationError{
					Field:   path + ".usage",
					Message: fmt.Sprintf("invalid usage %q, must be empty or %q", sv.Usage, ir.UsageIterateOver),
					Code:    ErrInvalidUsage,
				})
			}
			if sv.Usage == ir.UsageIterateOver {
				iterating++
			}
		}

		// E232
		if iterating > 1 {
			errs = append(errs, ValidationError{
				Field:   field(fmt.Sprintf("scenarios[%d].values", i)),
				Message: "at most one value may use iterate_over",
				Code:    ErrMultipleIterateOver,
			})
		}
	}
	return errs
}

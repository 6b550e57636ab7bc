package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sandcalc/internal/ir"
)

// ErrEmptyFunction is returned when a function body formats to nothing.
var ErrEmptyFunction = errors.New("function body is empty")

// BuildCall returns the expression that applies fn to the scenario's values.
//
// Arguments are passed positionally in declared order. An argument without a
// value is passed as undefined so its default applies. When a value is marked
// iterate_over, fn is mapped over that array and the expression evaluates to
// a labeled series.
func BuildCall(fn string, args []ir.FunctionArgument, sc ir.Scenario) (string, error) {
	if strings.TrimSpace(fn) == "" {
		return "", ErrEmptyFunction
	}

	iterName, iterating := sc.IterateOver()

	params := make([]string, len(args))
	for i, arg := range args {
		v, ok := sc.Values[arg.Name]
		switch {
		case iterating && arg.Name == iterName:
			params[i] = "__x"
		case ok && strings.TrimSpace(v.Value) != "":
			params[i] = "(" + v.Value + ")"
		default:
			params[i] = "undefined"
		}
	}

	if !iterating {
		return fmt.Sprintf("(%s)(%s)", fn, strings.Join(params, ", ")), nil
	}

	found := false
	for _, arg := range args {
		if arg.Name == iterName {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("iterate_over refers to unknown argument %q", iterName)
	}

	var b strings.Builder
	b.WriteString("((__fn, __labels) => {\n")
	b.WriteString("  if (!Array.isArray(__labels)) {\n")
	fmt.Fprintf(&b, "    throw new TypeError(%q);\n", iterName+" must be an array to iterate over")
	b.WriteString("  }\n")
	b.WriteString("  return {\n")
	b.WriteString("    labels: __labels,\n")
	b.WriteString("    results: __labels.map((__x) => {\n")
	fmt.Fprintf(&b, "      const __r = __fn(%s);\n", strings.Join(params, ", "))
	b.WriteString("      return typeof __r === \"number\" && isFinite(__r) ? __r : null;\n")
	b.WriteString("    }),\n")
	b.WriteString("  };\n")
	fmt.Fprintf(&b, "})(%s, (%s))", fn, sc.Values[iterName].Value)
	return b.String(), nil
}

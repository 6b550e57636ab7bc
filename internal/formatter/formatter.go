// Package formatter builds callable source for function components.
//
// Formatting is purely syntactic. Nothing here parses or executes the body.
package formatter

import (
	"strings"

	"github.com/roach88/sandcalc/internal/ir"
)

// Indent is one block indentation level.
const Indent = "  "

// Formatted is the output of Format.
type Formatted struct {
	// Result is the full arrow function source, or "" for an empty body.
	Result string `json:"result"`

	// FunctionSignature is the parenthesized argument list plus " => ".
	FunctionSignature string `json:"function_signature"`
}

// Format builds "(name1 = default1, name2) => body".
//
// Single-line bodies are used verbatim. A multi-line body is dedented, gets
// "return " on its final line unless that line already returns, and is
// wrapped in an indented block. An empty body produces an empty Formatted.
func Format(args []ir.FunctionArgument, body string) Formatted {
	lines := normalize(body)
	if len(lines) == 0 {
		return Formatted{}
	}

	sig := Signature(args)
	if len(lines) == 1 {
		return Formatted{Result: sig + lines[0], FunctionSignature: sig}
	}

	last := len(lines) - 1
	if !returns(lines[last]) {
		lines[last] = "return " + lines[last]
	}

	var b strings.Builder
	b.WriteString(sig)
	b.WriteString("{\n")
	for _, line := range lines {
		if line != "" {
			b.WriteString(Indent)
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	b.WriteString("}")

	return Formatted{Result: b.String(), FunctionSignature: sig}
}

// Signature returns the parenthesized argument list followed by " => ".
// An argument contributes "name = default" only when its default is non-empty.
func Signature(args []ir.FunctionArgument) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if arg.DefaultValue != "" {
			parts[i] = arg.Name + " = " + arg.DefaultValue
		} else {
			parts[i] = arg.Name
		}
	}
	return "(" + strings.Join(parts, ", ") + ") => "
}

func returns(line string) bool {
	return line == "return" || strings.HasPrefix(line, "return ") || strings.HasPrefix(line, "return;")
}

// normalize splits body into lines, drops blank lines at either end, trims
// trailing whitespace and removes the indentation common to every non-blank
// line. Returns nil for a blank body.
func normalize(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	if strings.TrimSpace(body) == "" {
		return nil
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}
	lines = lines[start:end]

	common := -1
	for _, line := range lines {
		if line == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		if line == "" {
			continue
		}
		out[i] = line[common:]
	}
	return out
}

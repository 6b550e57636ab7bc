package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/sandcalc/internal/compiler"
	"github.com/roach88/sandcalc/internal/store"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Components int                        `json:"components"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <defs-dir>",
		Short: "Validate component definitions without evaluating them",
		Long: `Validate CUE component definitions.

Checks syntax, component schema rules and dependency cycles without
touching a store or the sandbox. Every problem is reported, not just
the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command, opts *RootOptions, defsDir string) error {
	out := opts.formatter(cmd)

	loaded, loadErrs := LoadComponents(defsDir, LoadModeCollectAll)

	// Directory not found, no files, CUE build failures.
	if loaded == nil && len(loadErrs) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrs[0], &loadErr) {
			return outputValidateError(out, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(out, ErrCodeGeneric, loadErrs[0].Error())
	}

	out.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, defsDir)

	verrs := ValidateComponents(loaded)
	for _, err := range loadErrs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			verrs = append(verrs, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    loadErr.Line(),
			})
		}
	}

	if len(verrs) > 0 {
		return outputValidationErrors(out, len(loaded.Components), verrs)
	}

	result := ValidationResult{Valid: true, Components: len(loaded.Components)}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintln(w, "✓ All components valid")
	})
}

// ValidateComponents runs schema validation and the dependency cycle check
// over a loaded batch.
func ValidateComponents(loaded *LoadResult) []compiler.ValidationError {
	verrs := compiler.Validate(loaded.Components)
	if _, err := store.DependencyOrder(loaded.Components); err != nil {
		verrs = append(verrs, compiler.ValidationError{
			Field:   "dependencies",
			Message: err.Error(),
			Code:    compiler.ErrDependencyCycle,
		})
	}
	return verrs
}

// outputValidateError outputs a single command-level error.
func outputValidateError(out *OutputFormatter, code, message string) error {
	_ = out.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(out *OutputFormatter, components int, errs []compiler.ValidationError) error {
	result := ValidationResult{Valid: false, Components: components, Errors: errs}
	err := out.Failure(result, errs[0].Code, errs[0].Message, func(w io.Writer) {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, e := range errs {
			if e.Line > 0 {
				fmt.Fprintf(w, "line %d\n", e.Line)
			}
			fmt.Fprintf(w, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
		}
	})
	if err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

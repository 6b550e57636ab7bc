package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sandcalc/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // suite filter (glob pattern)
}

// SuiteResult is the outcome of one suite file.
type SuiteResult struct {
	Name      string                   `json:"name"`
	Pass      bool                     `json:"pass"`
	Scenarios []harness.ScenarioResult `json:"scenarios,omitempty"`
	Errors    []string                 `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Suites []SuiteResult `json:"suites"`
	Passed int           `json:"passed"`
	Failed int           `json:"failed"`
	Total  int           `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <suites-dir>",
		Short: "Run function scenario suites",
		Long: `Run YAML scenario suites against their function definitions.

Each suite defines a function and the scenarios that call it. A suite
passes when no scenario fails or errors. When <suites-dir>/golden/<name>.golden
exists, the outcome must also match it.

Exit codes:
  0 - All suites passed
  1 - One or more suites failed
  2 - Command error (invalid paths, etc.)

Examples:
  sandcalc test ./suites
  sandcalc test ./suites --filter "sum-*"
  sandcalc test ./suites --update
  sandcalc test ./suites --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter suites by glob pattern")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("suites directory not found: %s", dir))
	}

	paths, err := findSuiteFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "find suites", err)
	}

	result := TestResult{Suites: []SuiteResult{}, Total: len(paths)}
	if len(paths) == 0 {
		return out.Success(result, func(w io.Writer) {
			fmt.Fprintln(w, "No suites found.")
		})
	}

	rt := startRuntime(ctx, opts.Config, opts.logger())
	defer rt.close()

	harnessOpts := []harness.Option{harness.WithLogger(opts.logger())}
	if opts.Config.FormulaTimeout > 0 {
		harnessOpts = append(harnessOpts, harness.WithTimeout(opts.Config.FormulaTimeout))
	}
	h := harness.New(rt.engine, harnessOpts...)

	for _, path := range paths {
		sr, err := runSuiteFile(ctx, h, path, opts.Update)
		if err != nil {
			return WrapExitError(ExitCommandError, "run suites", err)
		}
		result.Suites = append(result.Suites, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	text := func(w io.Writer) {
		for _, sr := range result.Suites {
			mark := "✓"
			if !sr.Pass {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %s\n", mark, sr.Name)
			for _, e := range sr.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		if err := out.Failure(result, "E_SUITE_FAILED", fmt.Sprintf("%d suite(s) failed", result.Failed), text); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d suite(s) failed", result.Failed, result.Total))
	}
	return out.Success(result, text)
}

// runSuiteFile loads and runs one suite. Load problems and golden
// mismatches fail the suite; only a boundary that never mounted is
// returned as an error.
func runSuiteFile(ctx context.Context, h *harness.Harness, path string, update bool) (SuiteResult, error) {
	name := suiteFileName(path)

	suite, err := harness.LoadSuite(path)
	if err != nil {
		return SuiteResult{Name: name, Errors: []string{err.Error()}}, nil
	}

	res, err := h.Run(ctx, suite)
	if err != nil {
		return SuiteResult{}, err
	}

	sr := SuiteResult{
		Name:      name,
		Pass:      res.Pass,
		Scenarios: res.Scenarios,
		Errors:    res.Errors,
	}

	data, err := harness.Snapshot(res)
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("snapshot: %v", err))
		return sr, nil
	}

	goldenPath := goldenFilePath(path)
	if update {
		if err := writeGolden(goldenPath, data); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("golden update: %v", err))
		}
		return sr, nil
	}

	golden, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		return sr, nil
	}
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("golden read: %v", err))
		return sr, nil
	}
	if !bytes.Equal(bytes.TrimSpace(golden), data) {
		sr.Pass = false
		sr.Errors = append(sr.Errors, "golden file mismatch (run with --update to regenerate)")
	}
	return sr, nil
}

// findSuiteFiles returns the suite files in dir whose base name matches filter.
func findSuiteFiles(dir, filter string) ([]string, error) {
	paths, err := harness.FindSuites(dir)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return paths, nil
	}

	var matched []string
	for _, p := range paths {
		ok, err := filepath.Match(filter, suiteFileName(p))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if ok {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func suiteFileName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// goldenFilePath returns the golden file of a suite file.
func goldenFilePath(suiteFile string) string {
	return filepath.Join(filepath.Dir(suiteFile), "golden", suiteFileName(suiteFile)+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/sandcalc/internal/compare"
	"github.com/roach88/sandcalc/internal/ir"
)

// CompareResult is the outcome of a compare command.
// Verdict is nil when there was nothing to compare.
type CompareResult struct {
	Verdict *bool           `json:"verdict"`
	Series  *compare.Merged `json:"series,omitempty"`
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <result> <expected>",
		Short: "Compare a result with an expectation",
		Long: `Compare a computed result with an expected result.

Plain results must be equal. When either side is a labeled series
({"labels": [...], "results": [...]}) the two are aligned label by label.

Exit codes:
  0 - Expectation met, or nothing to compare
  1 - Expectation not met`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, rootOpts, args[0], args[1])
		},
	}
	return cmd
}

func runCompare(cmd *cobra.Command, opts *RootOptions, result, expected string) error {
	out := opts.formatter(cmd)

	res := CompareResult{Verdict: compare.CompareToExpectation(result, expected)}

	actual, actualOK := compare.ParseSeries(result)
	exp, expOK := compare.ParseSeries(expected)
	if actualOK || expOK {
		if !actualOK {
			actual = &ir.LabeledSeries{}
		}
		merged := compare.MergeExpected(actual, exp)
		res.Series = &merged
	}

	text := func(w io.Writer) {
		if res.Series != nil {
			for i, label := range res.Series.Labels {
				line := fmt.Sprintf("%g\t%s", label, formatPoint(res.Series.Results[i]))
				if res.Series.Expected != nil {
					mark := "✓"
					if !res.Series.Expected.Matched[i] {
						mark = "✗"
					}
					line += fmt.Sprintf("\texpected %s %s", formatPoint(res.Series.Expected.Results[i]), mark)
				}
				fmt.Fprintln(w, line)
			}
		}
		switch {
		case res.Verdict == nil:
			fmt.Fprintln(w, "no expectation")
		case *res.Verdict:
			fmt.Fprintln(w, "✓ expectation met")
		default:
			fmt.Fprintln(w, "✗ expectation not met")
		}
	}

	if res.Verdict != nil && !*res.Verdict {
		if err := out.Failure(res, "E_EXPECTATION", "expectation not met", text); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "expectation not met")
	}
	return out.Success(res, text)
}

func formatPoint(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *v)
}

package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sandcalc/internal/engine"
	"github.com/roach88/sandcalc/internal/ir"
	"github.com/roach88/sandcalc/internal/store"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Component string        // "<id>@<version>" or "<id>" for the latest version
	Defs      string        // CUE definitions directory
	DB        string        // component store path
	Timeout   time.Duration // overrides the configured formula timeout
	Recompute bool          // evaluate dependencies instead of using stored results
	Metrics   bool          // print Prometheus metrics to stderr afterwards
}

// EvalResult is the outcome of an eval command.
type EvalResult struct {
	Component  string  `json:"component,omitempty"`
	Result     *string `json:"result"`
	Error      *string `json:"error"`
	Code       string  `json:"code,omitempty"`
	DurationMs int64   `json:"duration_ms"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval [expression]",
		Short: "Evaluate an expression or a stored component",
		Long: `Evaluate source text in the sandbox, or a component with its dependencies.

With an expression argument, the expression is evaluated as-is.
With --component, the component is read from the store (--db) or from
CUE definitions (--defs), its dependencies are bound from their computed
results, and its formula is evaluated. --recompute evaluates every
dependency first instead of using stored results.

Exit codes:
  0 - Evaluation produced a result
  1 - Evaluation failed
  2 - Command error (invalid flags, store not found, etc.)

Examples:
  sandcalc eval "1 + 2"
  sandcalc eval --defs ./components --component 3@1
  sandcalc eval --db sandcalc.db --component 3 --recompute`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Component, "component", "", "component to evaluate (<id>@<version> or <id>)")
	cmd.Flags().StringVar(&opts.Defs, "defs", "", "CUE definitions directory")
	cmd.Flags().StringVar(&opts.DB, "db", "", "component store path")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "formula timeout (default from config)")
	cmd.Flags().BoolVar(&opts.Recompute, "recompute", false, "evaluate dependencies instead of using stored results")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics to stderr")

	return cmd
}

func runEval(cmd *cobra.Command, opts *EvalOptions, args []string) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if (len(args) == 1) == (opts.Component != "") {
		return NewExitError(ExitCommandError, "provide either an expression or --component")
	}

	cfg := opts.Config
	if opts.DB == "" {
		opts.DB = cfg.DB
	}
	if opts.Timeout > 0 {
		cfg.FormulaTimeout = opts.Timeout
	}

	rt := startRuntime(ctx, cfg, opts.logger())
	defer rt.close()

	var (
		result EvalResult
		resp   ir.EvaluationResponse
		err    error
	)
	if len(args) == 1 {
		resp, err = rt.engine.Evaluate(ctx, ir.EvaluationRequest{
			Source:    args[0],
			TimeoutMs: cfg.FormulaTimeout.Milliseconds(),
			Debug:     cfg.Debug,
			Log:       cfg.Log,
		})
	} else {
		var s *store.Store
		s, err = openComponents(ctx, opts.Defs, opts.DB)
		if err != nil {
			return err
		}
		defer s.Close()

		var id ir.ComponentID
		id, err = resolveComponentID(ctx, s, opts.Component)
		if err != nil {
			return err
		}
		result.Component = id.Key()
		formatter.VerboseLog("Evaluating component %s", id)

		ev := &componentEvaluator{store: s, engine: rt.engine, recompute: opts.Recompute, results: map[string]*string{}}
		resp, err = ev.evaluate(ctx, id, map[string]bool{})
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "evaluate", err)
	}

	if opts.Metrics {
		if err := rt.metrics.WriteText(cmd.ErrOrStderr()); err != nil {
			formatter.VerboseLog("writing metrics: %v", err)
		}
	}

	result.DurationMs = resp.Duration().Milliseconds()
	if out, ok := resp.Result(); ok {
		result.Result = &out
		return formatter.Success(result, func(w io.Writer) {
			fmt.Fprintln(w, out)
		})
	}

	msg := resp.Err()
	result.Error = &msg
	result.Code = string(engine.Classify(msg, false))
	if err := formatter.Failure(result, result.Code, msg, func(w io.Writer) {
		fmt.Fprintf(w, "Error [%s]: %s\n", result.Code, msg)
	}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// resolveComponentID parses "<id>@<version>", or looks up the latest
// version for a bare "<id>".
func resolveComponentID(ctx context.Context, s *store.Store, ref string) (ir.ComponentID, error) {
	if strings.Contains(ref, "@") {
		id, err := ir.ParseComponentID(ref)
		if err != nil {
			return ir.ComponentID{}, WrapExitError(ExitCommandError, "invalid --component", err)
		}
		return id, nil
	}

	n, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return ir.ComponentID{}, WrapExitError(ExitCommandError, "invalid --component", err)
	}
	c, ok, err := s.Latest(ctx, n)
	if err != nil {
		return ir.ComponentID{}, WrapExitError(ExitCommandError, "read store", err)
	}
	if !ok {
		return ir.ComponentID{}, NewExitError(ExitCommandError, fmt.Sprintf("component %d not found", n))
	}
	return c.ID, nil
}

// componentEvaluator evaluates stored components, optionally recomputing
// their dependencies leaves first.
type componentEvaluator struct {
	store     *store.Store
	engine    *engine.Engine
	recompute bool

	// results memoizes recomputed dependencies by key.
	results map[string]*string
}

func (e *componentEvaluator) evaluate(ctx context.Context, id ir.ComponentID, visiting map[string]bool) (ir.EvaluationResponse, error) {
	c, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return ir.EvaluationResponse{}, err
	}
	if !ok {
		return ir.EvaluationResponse{}, NewExitError(ExitCommandError, fmt.Sprintf("component %s not found", id))
	}

	var values engine.DependencyValues
	if e.recompute {
		if visiting[id.Key()] {
			return ir.EvaluationResponse{}, fmt.Errorf("dependency cycle at %s", id)
		}
		visiting[id.Key()] = true
		defer delete(visiting, id.Key())

		values = make(engine.DependencyValues, len(c.DependencyIDs))
		for _, dep := range c.DependencyIDs {
			if r, done := e.results[dep.Key()]; done {
				values[dep.Key()] = r
				continue
			}
			if _, found, err := e.store.Get(ctx, dep); err != nil {
				return ir.EvaluationResponse{}, err
			} else if !found {
				// Left absent so the resolver reports it as missing.
				continue
			}
			resp, err := e.evaluate(ctx, dep, visiting)
			if err != nil {
				return ir.EvaluationResponse{}, err
			}
			out, ok := resp.Result()
			if !ok {
				return ir.Failed(fmt.Sprintf("dependency %s: %s", dep, resp.Err()), resp.StartTime(), resp.EndTime()), nil
			}
			e.results[dep.Key()] = &out
			values[dep.Key()] = &out
		}
	} else {
		values, err = engine.CollectDependencyValues(ctx, e.store, c)
		if err != nil {
			return ir.EvaluationResponse{}, err
		}
	}

	return e.engine.EvaluateFormula(ctx, c, values, 0)
}

package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/sandcalc/internal/compare"
	"github.com/roach88/sandcalc/internal/engine"
	"github.com/roach88/sandcalc/internal/formatter"
	"github.com/roach88/sandcalc/internal/ir"
	"github.com/roach88/sandcalc/internal/sandbox"
)

// Engine is the part of *engine.Engine the harness drives.
type Engine interface {
	Evaluate(ctx context.Context, req ir.EvaluationRequest) (ir.EvaluationResponse, error)
	EvaluateFormula(ctx context.Context, c ir.Component, values engine.DependencyValues, timeoutMs int64) (ir.EvaluationResponse, error)
}

// Harness runs suites against an engine.
type Harness struct {
	engine  Engine
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
	tempIDs ir.TempIDGenerator
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// WithNow sets the wall clock handed to the boundary and engine.
// Default: time.Now.
func WithNow(now func() time.Time) Option {
	return func(h *Harness) {
		h.now = now
	}
}

// WithTimeout sets the per-scenario evaluation timeout.
// Default: engine.DefaultFormulaTimeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) {
		h.timeout = d
	}
}

// WithTempIDGenerator sets the generator of draft component ids.
// Default: ir.UUIDv7Generator.
func WithTempIDGenerator(gen ir.TempIDGenerator) Option {
	return func(h *Harness) {
		h.tempIDs = gen
	}
}

// New creates a Harness evaluating through eng.
func New(eng Engine, opts ...Option) *Harness {
	h := &Harness{
		engine:  eng,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		timeout: engine.DefaultFormulaTimeout,
		tempIDs: ir.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run evaluates every scenario of suite in order.
//
// The function definition is evaluated first; if it fails, no scenario runs.
// Evaluation failures are recorded in the result. The only returned error is
// sandbox.ErrBoundaryNeverMounted.
func (h *Harness) Run(ctx context.Context, suite *Suite) (*Result, error) {
	result := NewResult(suite.Name)

	component := suite.DraftComponent(h.tempIDs)
	result.Definition = formatter.Format(component.Arguments, component.Source).Result
	if result.Definition == "" {
		result.AddError("definition: %v", ErrEmptyFunction)
		return result, nil
	}

	def, err := h.engine.EvaluateFormula(ctx, component, nil, h.timeout.Milliseconds())
	if err != nil {
		return nil, err
	}
	if !def.OK() {
		result.AddError("definition: %s", def.Err())
		return result, nil
	}

	for i, sc := range component.Scenarios {
		sr, err := h.runScenario(ctx, i, result.Definition, component.Arguments, sc)
		if err != nil {
			return nil, err
		}

		switch sr.Verdict {
		case VerdictFail:
			result.AddError("scenario %d (%s): expected %s, got %s", i, sr.Description, sr.Expected, deref(sr.Result))
		case VerdictError:
			result.AddError("scenario %d (%s): %s", i, sr.Description, deref(sr.Error))
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	h.logger.Info("suite finished",
		"suite", suite.Name,
		"pass", result.Pass,
		"scenarios", len(result.Scenarios),
	)
	return result, nil
}

func (h *Harness) runScenario(ctx context.Context, i int, fn string, args []ir.FunctionArgument, sc ir.Scenario) (ScenarioResult, error) {
	sr := ScenarioResult{
		Index:       i,
		Description: sc.Description,
		Expected:    sc.ExpectedResult,
	}

	call, err := BuildCall(fn, args, sc)
	if err != nil {
		msg := err.Error()
		sr.Error = &msg
		sr.Verdict = VerdictError
		return sr, nil
	}
	sr.Call = call

	resp, err := h.engine.Evaluate(ctx, ir.EvaluationRequest{
		Source:      call,
		RequestedAt: h.now(),
		TimeoutMs:   h.timeout.Milliseconds(),
	})
	if err != nil {
		return sr, err
	}
	sr.Duration = resp.Duration()

	out, ok := resp.Result()
	if !ok {
		msg := resp.Err()
		sr.Error = &msg
		sr.Verdict = VerdictError
		h.logger.Debug("scenario errored", "index", i, "error", msg)
		return sr, nil
	}
	sr.Result = &out
	sr.Verdict = verdictOf(compare.CompareToExpectation(out, sc.ExpectedResult))
	sr.Series = mergedSeries(out, sc.ExpectedResult)

	h.logger.Debug("scenario evaluated", "index", i, "verdict", sr.Verdict)
	return sr, nil
}

func verdictOf(met *bool) Verdict {
	switch {
	case met == nil:
		return VerdictNone
	case *met:
		return VerdictPass
	default:
		return VerdictFail
	}
}

// mergedSeries aligns the result with the expectation when either is a
// labeled series.
func mergedSeries(result, expected string) *compare.Merged {
	actual, actualOK := compare.ParseSeries(result)
	exp, expOK := compare.ParseSeries(expected)
	if !actualOK && !expOK {
		return nil
	}
	if !actualOK {
		actual = &ir.LabeledSeries{}
	}
	if !expOK {
		exp = nil
	}
	merged := compare.MergeExpected(actual, exp)
	return &merged
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

// RunIsolated runs suite on a freshly mounted boundary with its own engine,
// tearing both down afterwards.
func RunIsolated(ctx context.Context, suite *Suite, opts ...Option) (*Result, error) {
	cfg := New(nil, opts...)

	boundary := sandbox.New(
		sandbox.WithLogger(cfg.logger),
		sandbox.WithNow(cfg.now),
	)
	boundary.Mount()
	defer boundary.Unmount()

	eng := engine.New(boundary,
		engine.WithLogger(cfg.logger),
		engine.WithNow(cfg.now),
		engine.WithFormulaTimeout(cfg.timeout),
	)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(runCtx)
	}()
	defer func() {
		eng.Stop()
		cancel()
		<-done
	}()

	cfg.engine = eng
	result, err := cfg.Run(ctx, suite)
	if err != nil {
		return nil, fmt.Errorf("run suite %s: %w", suite.Name, err)
	}
	return result, nil
}

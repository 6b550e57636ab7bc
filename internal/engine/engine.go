package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/sandcalc/internal/formatter"
	"github.com/roach88/sandcalc/internal/ir"
	"github.com/roach88/sandcalc/internal/sandbox"
)

const (
	// DefaultFormulaTimeout bounds evaluation of a component's own formula.
	DefaultFormulaTimeout = time.Second

	// DefaultInjectionTimeout bounds the dependency injection step, which may
	// define many bindings.
	DefaultInjectionTimeout = 10 * time.Second
)

const tracerName = "github.com/roach88/sandcalc/internal/engine"

// Evaluator runs a single request in an isolated context.
// Implemented by *sandbox.Boundary.
type Evaluator interface {
	Evaluate(ctx context.Context, req ir.EvaluationRequest) (ir.EvaluationResponse, error)
}

// Observer is notified after every job the engine dispatches or resolves.
// Implemented by metrics.Collector.
type Observer interface {
	ObserveEvaluation(stage string, code string, latency time.Duration)
	ObserveQueueDepth(depth int)
}

type nopObserver struct{}

func (nopObserver) ObserveEvaluation(string, string, time.Duration) {}
func (nopObserver) ObserveQueueDepth(int)                           {}

// Engine serializes evaluations onto one shared Evaluator.
//
// The boundary's global scope is retained between requests and dependency
// injection primes it for the next request, so order matters: the engine
// dispatches exactly one job at a time, in the order jobs were enqueued,
// and a job's response is settled before the next job is dispatched.
//
// Thread-safety model:
//   - Evaluate(), EvaluateFormula(), Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	boundary Evaluator
	queue    *jobQueue
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
	now      func() time.Time

	formulaTimeout   time.Duration
	injectionTimeout time.Duration
	debug            bool
	log              bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithFormulaTimeout sets the default timeout of formula evaluations.
//
// Default: 1s (DefaultFormulaTimeout)
func WithFormulaTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.formulaTimeout = d
	}
}

// WithInjectionTimeout sets the timeout of dependency injection.
//
// Default: 10s (DefaultInjectionTimeout)
func WithInjectionTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.injectionTimeout = d
	}
}

// WithObserver installs an evaluation observer, typically metrics.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithTracer overrides the tracer. Default: the global otel provider.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithNow overrides the wall clock used to stamp requests.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDebug requests JavaScript stacks in runtime error messages.
func WithDebug(debug bool) EngineOption {
	return func(e *Engine) {
		e.debug = debug
	}
}

// WithConsoleLog asks the boundary to capture console output.
func WithConsoleLog(log bool) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// New creates an Engine dispatching to boundary.
// Run must be started before any submission can complete.
func New(boundary Evaluator, opts ...EngineOption) *Engine {
	e := &Engine{
		boundary:         boundary,
		queue:            newJobQueue(),
		logger:           slog.Default(),
		tracer:           otel.Tracer(tracerName),
		observer:         nopObserver{},
		now:              time.Now,
		formulaTimeout:   DefaultFormulaTimeout,
		injectionTimeout: DefaultInjectionTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run starts the single-consumer dispatch loop.
// Blocks until ctx is cancelled or Stop() is called. Jobs still queued at
// that point resolve with MsgStopped.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		// Try non-blocking dequeue first
		j, ok := e.queue.TryDequeue()
		if ok {
			e.dispatch(ctx, j)
			e.observer.ObserveQueueDepth(e.queue.Len())
			continue
		}

		// No job ready - wait for signal or context cancellation
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.abandon(e.queue.Close())
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed,
			// which will cause this case to fire immediately
			if e.queue.Len() == 0 && e.queue.Closed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Jobs not yet dispatched resolve with MsgStopped;
// the job in flight, if any, completes normally.
func (e *Engine) Stop() {
	e.abandon(e.queue.Close())
}

// QueueLen returns the number of jobs waiting for dispatch.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

func (e *Engine) abandon(jobs []*job) {
	for _, j := range jobs {
		now := e.now()
		j.settle(ir.Failed(MsgStopped, now, now), nil)
	}
	if len(jobs) > 0 {
		e.logger.Warn("engine abandoned queued jobs", "count", len(jobs))
	}
}

// dispatch sends one job to the boundary and settles it.
// CRITICAL: Called only from Run() goroutine - single-flight guarantee.
func (e *Engine) dispatch(ctx context.Context, j *job) {
	if b := j.batch; b != nil && (b.failure != "" || b.err != nil) {
		now := e.now()
		j.settle(ir.Failed(b.failure, now, now), b.err)
		return
	}

	e.logger.Debug("dispatching evaluation",
		"stage", j.stage,
		"timeout_ms", j.req.TimeoutMs,
	)

	var (
		resp ir.EvaluationResponse
		err  error
	)
	if verr := j.req.Validate(); verr != nil {
		now := e.now()
		resp = ir.Failed(verr.Error(), now, now)
	} else {
		resp, err = e.boundary.Evaluate(ctx, j.req)
	}
	if err != nil {
		if j.batch != nil {
			j.batch.err = err
		}
		e.logger.Error("evaluation dispatch failed",
			"stage", j.stage,
			"error", err,
		)
		j.settle(ir.EvaluationResponse{}, err)
		return
	}

	if !resp.OK() {
		if j.abortBatch && j.batch != nil {
			j.batch.failure = resp.Err()
		}
		e.logger.Debug("evaluation failed",
			"stage", j.stage,
			"error", resp.Err(),
			"duration", resp.Duration(),
		)
	}

	code := Classify(resp.Err(), resp.OK())
	e.observer.ObserveEvaluation(string(j.stage), string(code), resp.Duration())

	j.settle(resp, nil)
}

// Future is a handle on a submitted job.
type Future struct {
	j   *job
	now func() time.Time
}

// Done is closed once the job has settled.
func (f *Future) Done() <-chan struct{} {
	return f.j.settled
}

// Wait blocks until the job settles or ctx is done. A cancelled wait
// resolves with sandbox.MsgCancelled; the job itself may still run.
func (f *Future) Wait(ctx context.Context) (ir.EvaluationResponse, error) {
	select {
	case <-f.j.settled:
		return f.j.resp, f.j.err
	case <-ctx.Done():
		now := f.now()
		return ir.Failed(sandbox.MsgCancelled, now, now), nil
	}
}

// Submit enqueues req and returns a handle on its result without waiting.
// A zero TimeoutMs or RequestedAt takes the engine's default.
func (e *Engine) Submit(req ir.EvaluationRequest) *Future {
	if req.TimeoutMs <= 0 {
		req.TimeoutMs = e.formulaTimeout.Milliseconds()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = e.now()
	}
	j := newJob(StageRaw, req)
	e.enqueue(j)
	return &Future{j: j, now: e.now}
}

// enqueue appends jobs as one adjacent run. Jobs of a stopped engine settle
// immediately with MsgStopped.
func (e *Engine) enqueue(jobs ...*job) {
	if !e.queue.Enqueue(jobs...) {
		e.abandon(jobs)
		return
	}
	e.observer.ObserveQueueDepth(e.queue.Len())
}

// Evaluate runs req through the queue and waits for its response.
// The only returned error is sandbox.ErrBoundaryNeverMounted.
func (e *Engine) Evaluate(ctx context.Context, req ir.EvaluationRequest) (ir.EvaluationResponse, error) {
	return e.Submit(req).Wait(ctx)
}

// EvaluateFormula evaluates c with its dependencies bound from values.
//
// The dependency injection and the formula are enqueued together, so no
// other evaluation can run between them. A missing dependency fails the
// response before anything reaches the boundary; a failed injection fails
// the response without running the formula. Function components are
// formatted first, so their result is the function's source text.
//
// timeoutMs <= 0 selects the engine's formula timeout.
// The only returned error is sandbox.ErrBoundaryNeverMounted.
func (e *Engine) EvaluateFormula(ctx context.Context, c ir.Component, values DependencyValues, timeoutMs int64) (ir.EvaluationResponse, error) {
	ctx, span := e.tracer.Start(ctx, "engine.EvaluateFormula",
		trace.WithAttributes(
			attribute.String("component.id", c.ID.Key()),
			attribute.String("component.kind", string(c.Kind)),
			attribute.Int("component.dependencies", len(c.DependencyIDs)),
		),
	)
	defer span.End()

	start := e.now()

	injection, err := BuildInjection(c, values)
	if err != nil {
		var engErr *Error
		if !errors.As(err, &engErr) {
			engErr = &Error{Code: ErrCodeRuntimeError, Message: err.Error()}
		}
		e.logger.Warn("dependency resolution failed",
			"component", c.ID.Key(),
			"code", engErr.Code,
			"error", engErr.Message,
		)
		e.observer.ObserveEvaluation(string(StageInjection), string(engErr.Code), 0)
		span.SetStatus(codes.Error, engErr.Message)
		span.SetAttributes(attribute.String("evaluation.code", string(engErr.Code)))
		return ir.Failed(engErr.Message, start, e.now()), nil
	}

	source := c.Source
	if c.IsFunction() {
		source = formatter.Format(c.Arguments, c.Source).Result
	}

	if timeoutMs <= 0 {
		timeoutMs = e.formulaTimeout.Milliseconds()
	}

	b := &batch{}
	var jobs []*job
	if injection != "" {
		inj := newJob(StageInjection, e.request(injection, e.injectionTimeout.Milliseconds()))
		inj.batch = b
		inj.abortBatch = true
		jobs = append(jobs, inj)
	}
	formula := newJob(StageFormula, e.request(source, timeoutMs))
	formula.batch = b
	jobs = append(jobs, formula)

	e.enqueue(jobs...)

	resp, err := (&Future{j: formula, now: e.now}).Wait(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	code := Classify(resp.Err(), resp.OK())
	if code != "" {
		span.SetStatus(codes.Error, resp.Err())
		span.SetAttributes(attribute.String("evaluation.code", string(code)))
	}

	e.logger.Debug("formula evaluated",
		"component", c.ID.Key(),
		"ok", resp.OK(),
		"duration", resp.Duration(),
	)

	return resp, nil
}

func (e *Engine) request(source string, timeoutMs int64) ir.EvaluationRequest {
	return ir.EvaluationRequest{
		Source:      source,
		RequestedAt: e.now(),
		TimeoutMs:   timeoutMs,
		Debug:       e.debug,
		Log:         e.log,
	}
}

package sandbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/sandcalc/internal/ir"
)

// State is the lifecycle state of a Boundary.
type State int32

const (
	// StateUnmounted means no execution context exists.
	StateUnmounted State = iota
	// StateLoading means a context was created and the host awaits its loaded signal.
	StateLoading
	// StateReady means the context is idle and accepts requests.
	StateReady
	// StateEvaluating means a request is outstanding.
	StateEvaluating
)

func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateEvaluating:
		return "evaluating"
	default:
		return "unknown"
	}
}

// DefaultMaxLogLines caps console output captured per evaluation.
const DefaultMaxLogLines = 100

// Option configures a Boundary.
type Option func(*Boundary)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Boundary) {
		b.logger = logger
	}
}

// WithClock sets the evaluation id clock.
func WithClock(c *Clock) Option {
	return func(b *Boundary) {
		b.clock = c
	}
}

// WithNow overrides the wall clock used for response timing metadata.
func WithNow(now func() time.Time) Option {
	return func(b *Boundary) {
		b.now = now
	}
}

// WithLoadDelay delays the loaded signal of every mount.
// Used by tests to exercise the Loading state.
func WithLoadDelay(d time.Duration) Option {
	return func(b *Boundary) {
		b.loadDelay = d
	}
}

// WithMaxLogLines caps captured console lines per evaluation.
func WithMaxLogLines(n int) Option {
	return func(b *Boundary) {
		b.maxLogLines = n
	}
}

// Boundary is the isolated execution context formulas run in.
//
// Each mount owns one JavaScript runtime on its own goroutine. The host and
// the runtime share no memory: requests and responses cross as JSON
// envelopes, correlated by a monotonically increasing evaluation id.
//
// The runtime's global scope is retained between evaluations of the same
// mount. Declarations made by one evaluation stay visible to the next, which
// is what dependency injection relies on. Callers that need a strict order
// (the engine's queue) must not issue overlapping requests.
//
// Thread-safety: all methods are safe for concurrent use.
type Boundary struct {
	logger      *slog.Logger
	clock       *Clock
	now         func() time.Time
	loadDelay   time.Duration
	maxLogLines int

	mu          sync.Mutex
	state       State
	mountedOnce bool
	worker      *worker
	loaded      chan struct{}
	pending     map[int64]chan ir.ResponseEnvelope
}

// New creates an unmounted Boundary.
func New(opts ...Option) *Boundary {
	b := &Boundary{
		logger:      slog.Default(),
		clock:       NewClock(),
		now:         time.Now,
		maxLogLines: DefaultMaxLogLines,
		pending:     make(map[int64]chan ir.ResponseEnvelope),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Boundary) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Pending returns the number of requests awaiting a reply.
func (b *Boundary) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Mount creates a fresh execution context (Unmounted -> Loading).
// The boundary becomes Ready once the context signals it has loaded.
// Mounting an already mounted boundary is a no-op.
func (b *Boundary) Mount() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateUnmounted {
		return
	}

	w := newWorker(b.loadDelay, b.maxLogLines, b.logger)
	loaded := make(chan struct{})

	b.worker = w
	b.loaded = loaded
	b.state = StateLoading
	b.mountedOnce = true

	go w.run()
	go b.receive(w, loaded)

	b.logger.Debug("sandbox mounting")
}

// Unmount stops the execution context and discards its scope.
// Outstanding requests resolve with an unmounted error.
func (b *Boundary) Unmount() {
	b.mu.Lock()
	w := b.worker
	if w == nil {
		b.mu.Unlock()
		return
	}
	b.worker = nil
	b.loaded = nil
	b.state = StateUnmounted

	orphans := b.pending
	b.pending = make(map[int64]chan ir.ResponseEnvelope)
	b.mu.Unlock()

	w.stop()

	msg := MsgUnmounted
	for id, ch := range orphans {
		ch <- ir.ResponseEnvelope{Type: ir.EnvelopeResponse, EvaluationID: id, Error: &msg}
	}
	b.logger.Debug("sandbox unmounted", "orphaned", len(orphans))
}

// receive reads envelopes from one worker until its outbox closes.
func (b *Boundary) receive(w *worker, loaded chan struct{}) {
	var once sync.Once
	for data := range w.outbox {
		var env ir.ResponseEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			b.logger.Debug("dropping undecodable sandbox message", "error", err)
			continue
		}

		if env.Type == ir.EnvelopeLoaded {
			b.mu.Lock()
			if b.worker == w && b.state == StateLoading {
				b.state = StateReady
			}
			b.mu.Unlock()
			once.Do(func() { close(loaded) })
			b.logger.Debug("sandbox loaded")
			continue
		}

		b.resolve(env)
	}
}

// resolve hands a reply to its pending request. A reply whose entry is gone
// (timed out, cancelled, unmounted, or never existed) is dropped.
func (b *Boundary) resolve(env ir.ResponseEnvelope) {
	ch, ok := b.take(env.EvaluationID)
	if !ok {
		b.logger.Debug("dropping uncorrelated sandbox response", "evaluation_id", env.EvaluationID)
		return
	}
	for _, line := range env.Logs {
		b.logger.Info("sandbox console", "evaluation_id", env.EvaluationID, "line", line)
	}
	ch <- env
}

// take removes and returns the pending entry for id. Exactly one caller
// can succeed per id; this is what makes resolution at-most-once.
func (b *Boundary) take(id int64) (chan ir.ResponseEnvelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
		if len(b.pending) == 0 && b.state == StateEvaluating {
			b.state = StateReady
		}
	}
	return ch, ok
}

// Evaluate runs req.Source in the execution context.
//
// The only returned error is ErrBoundaryNeverMounted. Every other failure
// (invalid request, load timeout, evaluation timeout, runtime error,
// cancellation) is reported through the response.
func (b *Boundary) Evaluate(ctx context.Context, req ir.EvaluationRequest) (ir.EvaluationResponse, error) {
	b.mu.Lock()
	if !b.mountedOnce {
		b.mu.Unlock()
		return ir.EvaluationResponse{}, ErrBoundaryNeverMounted
	}
	w, loaded := b.worker, b.loaded
	b.mu.Unlock()

	start := b.now()
	fail := func(msg string) (ir.EvaluationResponse, error) {
		return ir.Failed(msg, start, b.now()), nil
	}

	if w == nil {
		return fail(MsgUnmounted)
	}
	if err := req.Validate(); err != nil {
		return fail(err.Error())
	}

	timeout := req.Timeout()
	if err := waitLoaded(ctx, loaded, timeout); err != "" {
		return fail(err)
	}

	id := b.clock.Next()
	reply := make(chan ir.ResponseEnvelope, 1)

	b.mu.Lock()
	if b.worker != w {
		b.mu.Unlock()
		return fail(MsgUnmounted)
	}
	b.pending[id] = reply
	b.state = StateEvaluating
	b.mu.Unlock()

	payload, err := json.Marshal(ir.RequestEnvelope{
		EvaluationID: id,
		Source:       req.Source,
		TimeoutMs:    req.TimeoutMs,
		Debug:        req.Debug,
		Log:          req.Log,
	})
	if err != nil {
		b.take(id)
		return fail(err.Error())
	}

	b.logger.Debug("sandbox evaluate", "evaluation_id", id, "timeout_ms", req.TimeoutMs)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if !w.send(payload) {
		if _, ok := b.take(id); ok {
			return fail(MsgUnmounted)
		}
		return b.respond(<-reply, start)
	}

	select {
	case env := <-reply:
		return b.respond(env, start)

	case <-timer.C:
		if _, ok := b.take(id); ok {
			b.logger.Debug("sandbox evaluation timed out", "evaluation_id", id)
			return fail(TimeoutMessage(timeout))
		}
		// The reply claimed the entry first; it is already buffered.
		return b.respond(<-reply, start)

	case <-ctx.Done():
		if _, ok := b.take(id); ok {
			return fail(MsgCancelled)
		}
		return b.respond(<-reply, start)
	}
}

func (b *Boundary) respond(env ir.ResponseEnvelope, start time.Time) (ir.EvaluationResponse, error) {
	end := b.now()
	switch {
	case !env.Valid():
		return ir.Failed(MsgMalformed, start, end), nil
	case env.Error != nil:
		return ir.Failed(*env.Error, start, end), nil
	default:
		return ir.Succeeded(*env.Result, start, end), nil
	}
}

// waitLoaded blocks until loaded is closed, the timeout elapses or ctx is
// done. Returns "" once loaded, or the failure message.
func waitLoaded(ctx context.Context, loaded <-chan struct{}, timeout time.Duration) string {
	select {
	case <-loaded:
		return ""
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-loaded:
		return ""
	case <-timer.C:
		return MsgLoadTimeout
	case <-ctx.Done():
		return MsgCancelled
	}
}

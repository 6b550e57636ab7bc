package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/roach88/sandcalc/internal/ir"
)

// worker owns one goja runtime and its global scope.
//
// The runtime is touched only by the run goroutine (plus Interrupt, which
// goja allows from any goroutine). The host talks to it exclusively through
// inbox and outbox, and only JSON bytes travel over them, so no host object
// is ever reachable from sandboxed code and no JS value escapes.
type worker struct {
	vm     *goja.Runtime
	inbox  chan []byte
	outbox chan []byte
	done   chan struct{}

	loadDelay   time.Duration
	maxLogLines int
	logger      *slog.Logger

	stopOnce sync.Once

	// Only accessed from run.
	render  goja.Callable
	logs    []string
	capture bool
}

func newWorker(loadDelay time.Duration, maxLogLines int, logger *slog.Logger) *worker {
	return &worker{
		vm:          goja.New(),
		inbox:       make(chan []byte, 16),
		outbox:      make(chan []byte, 16),
		done:        make(chan struct{}),
		loadDelay:   loadDelay,
		maxLogLines: maxLogLines,
		logger:      logger,
	}
}

// send delivers a request envelope. Returns false once the worker stopped.
func (w *worker) send(payload []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.inbox <- payload:
		return true
	case <-w.done:
		return false
	}
}

// stop terminates the worker and interrupts any running evaluation.
func (w *worker) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.vm.Interrupt(errStopped)
	})
}

var errStopped = errors.New("sandbox stopped")

// run initializes the scope, signals loaded, then serves requests one at a
// time until stopped. outbox is closed on return.
func (w *worker) run() {
	defer close(w.outbox)

	if w.loadDelay > 0 {
		select {
		case <-time.After(w.loadDelay):
		case <-w.done:
			return
		}
	}

	if err := w.bootstrap(); err != nil {
		w.logger.Error("sandbox bootstrap failed", "error", err)
		return
	}
	w.emit(ir.ResponseEnvelope{Type: ir.EnvelopeLoaded})

	for {
		select {
		case <-w.done:
			return
		case payload := <-w.inbox:
			w.emit(w.handle(payload))
		}
	}
}

func (w *worker) bootstrap() error {
	console := w.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		level := name
		if err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			w.captureLog(level, call.Arguments)
			return goja.Undefined()
		}); err != nil {
			return fmt.Errorf("install console.%s: %w", name, err)
		}
	}
	if err := w.vm.Set("console", console); err != nil {
		return fmt.Errorf("install console: %w", err)
	}

	v, err := w.vm.RunString(prelude)
	if err != nil {
		return fmt.Errorf("run prelude: %w", err)
	}
	render, ok := goja.AssertFunction(v)
	if !ok {
		return fmt.Errorf("prelude did not return a render function")
	}
	w.render = render
	return nil
}

func (w *worker) captureLog(level string, args []goja.Value) {
	if !w.capture || len(w.logs) >= w.maxLogLines {
		return
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	line := strings.Join(parts, " ")
	if level != "log" {
		line = level + ": " + line
	}
	w.logs = append(w.logs, line)
}

func (w *worker) emit(env ir.ResponseEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		w.logger.Error("sandbox failed to encode response", "evaluation_id", env.EvaluationID, "error", err)
		return
	}
	select {
	case w.outbox <- data:
	case <-w.done:
	}
}

// handle executes one request envelope. Every failure inside the sandbox,
// including host-side decoding problems, becomes the envelope's error.
func (w *worker) handle(payload []byte) ir.ResponseEnvelope {
	var req ir.RequestEnvelope
	if err := json.Unmarshal(payload, &req); err != nil {
		return failure(0, fmt.Sprintf("decode request: %v", err))
	}

	w.capture = req.Log
	w.logs = nil

	result, err := w.execute(req)

	env := ir.ResponseEnvelope{Type: ir.EnvelopeResponse, EvaluationID: req.EvaluationID}
	if err != nil {
		msg := describe(err, req)
		env.Error = &msg
	} else {
		env.Result = &result
	}
	if req.Log && len(w.logs) > 0 {
		env.Logs = w.logs
	}
	return env
}

// execute runs source under a wall-clock interrupt of req.TimeoutMs.
func (w *worker) execute(req ir.RequestEnvelope) (string, error) {
	var (
		mu     sync.Mutex
		active = true
	)
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	timer := time.AfterFunc(timeout, func() {
		mu.Lock()
		defer mu.Unlock()
		if active {
			w.vm.Interrupt(timeoutInterrupt{timeout: timeout})
		}
	})
	defer func() {
		mu.Lock()
		active = false
		mu.Unlock()
		timer.Stop()
		w.vm.ClearInterrupt()
	}()

	v, err := w.vm.RunString(req.Source)
	if err != nil {
		return "", err
	}

	out, err := w.render(goja.Undefined(), v)
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

type timeoutInterrupt struct {
	timeout time.Duration
}

func (t timeoutInterrupt) String() string {
	return TimeoutMessage(t.timeout)
}

// describe renders an execution error as the string reported to the host.
func describe(err error, req ir.RequestEnvelope) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch v := interrupted.Value().(type) {
		case timeoutInterrupt:
			return v.String()
		case error:
			return v.Error()
		default:
			return fmt.Sprint(v)
		}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		if req.Debug {
			return exception.String()
		}
		if v := exception.Value(); v != nil {
			return v.String()
		}
	}
	return err.Error()
}

func failure(id int64, msg string) ir.ResponseEnvelope {
	return ir.ResponseEnvelope{Type: ir.EnvelopeResponse, EvaluationID: id, Error: &msg}
}

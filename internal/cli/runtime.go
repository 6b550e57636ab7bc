package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/sandcalc/internal/engine"
	"github.com/roach88/sandcalc/internal/metrics"
	"github.com/roach88/sandcalc/internal/sandbox"
)

// runtime is a mounted boundary with a running engine in front of it.
type runtime struct {
	boundary *sandbox.Boundary
	engine   *engine.Engine
	metrics  *metrics.Collector

	cancel context.CancelFunc
	done   chan error
}

// startRuntime mounts a boundary and starts an engine configured from cfg.
// The caller must call close.
func startRuntime(ctx context.Context, cfg Config, logger *slog.Logger) *runtime {
	collector := metrics.New()

	boundaryOpts := []sandbox.Option{
		sandbox.WithLogger(logger),
		sandbox.WithLoadDelay(cfg.LoadDelay),
	}
	if cfg.MaxLogLines > 0 {
		boundaryOpts = append(boundaryOpts, sandbox.WithMaxLogLines(cfg.MaxLogLines))
	}
	boundary := sandbox.New(boundaryOpts...)
	boundary.Mount()

	engOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithObserver(collector),
		engine.WithDebug(cfg.Debug),
		engine.WithConsoleLog(cfg.Log),
	}
	if cfg.FormulaTimeout > 0 {
		engOpts = append(engOpts, engine.WithFormulaTimeout(cfg.FormulaTimeout))
	}
	if cfg.InjectionTimeout > 0 {
		engOpts = append(engOpts, engine.WithInjectionTimeout(cfg.InjectionTimeout))
	}
	eng := engine.New(boundary, engOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	rt := &runtime{
		boundary: boundary,
		engine:   eng,
		metrics:  collector,
		cancel:   cancel,
		done:     make(chan error, 1),
	}
	go func() {
		rt.done <- eng.Run(runCtx)
	}()
	return rt
}

// close stops the engine, waits for its loop and unmounts the boundary.
func (r *runtime) close() {
	r.engine.Stop()
	r.cancel()
	<-r.done
	r.boundary.Unmount()
}

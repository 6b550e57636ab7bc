// Package engine serializes formula evaluations onto one sandbox boundary.
//
// The engine is the entry point callers use to evaluate a component: it
// resolves the component's dependencies into an injection script, queues
// the injection and the formula together, and returns the formula's
// response.
//
// ARCHITECTURE:
//
// Single-Consumer Queue:
// The boundary keeps its global scope between evaluations, and injection
// only works if the formula runs right after it. The engine therefore
// dispatches all jobs from a single goroutine. This ensures:
//   - Exactly one request is in flight at the boundary
//   - Requests reach the boundary in enqueue order
//   - A response settles before the next request is dispatched
//
// Evaluation Flow:
//  1. BuildInjection turns the dependency values into __bind statements
//  2. The injection job and the formula job are enqueued under one lock
//  3. Engine.Run() dequeues and dispatches jobs one at a time
//  4. A failed injection settles the rest of its batch without dispatching
//  5. The caller waits on the formula job's Future
//
// FAILURES:
//
// Every recoverable failure is reported as the error of an
// ir.EvaluationResponse. The only error returned from Evaluate and
// EvaluateFormula is sandbox.ErrBoundaryNeverMounted. Nothing is retried.
package engine

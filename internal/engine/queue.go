package engine

import (
	"sync"

	"github.com/roach88/sandcalc/internal/ir"
)

// Stage labels what a job does, for logs and metrics.
type Stage string

const (
	// StageInjection primes the sandbox scope with dependency bindings.
	StageInjection Stage = "injection"
	// StageFormula evaluates a component's own formula.
	StageFormula Stage = "formula"
	// StageRaw is a caller-supplied request.
	StageRaw Stage = "raw"
)

// job is one request waiting for its turn at the boundary.
type job struct {
	req   ir.EvaluationRequest
	stage Stage
	batch *batch

	// abortBatch marks a job whose failure must keep the rest of its batch
	// away from the boundary (an injection the formula depends on).
	abortBatch bool

	settled chan struct{}
	resp    ir.EvaluationResponse
	err     error
}

func newJob(stage Stage, req ir.EvaluationRequest) *job {
	return &job{req: req, stage: stage, settled: make(chan struct{})}
}

// settle records the outcome and wakes waiters. Called exactly once.
func (j *job) settle(resp ir.EvaluationResponse, err error) {
	j.resp = resp
	j.err = err
	close(j.settled)
}

// batch groups jobs enqueued together. Once a job with abortBatch fails,
// later jobs of the batch resolve with the recorded failure.
type batch struct {
	failure string
	err     error
}

// jobQueue is a thread-safe FIFO queue of jobs.
//
// Enqueue appends all jobs of a call under a single lock, so the jobs of a
// batch are adjacent: no other caller's job can land between a dependency
// injection and the formula that relies on it.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []*job
	closed bool
	signal chan struct{} // Signals job availability (buffered, size 1)
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]*job, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds jobs to the back of the queue, in order.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *jobQueue) Enqueue(jobs ...*job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.jobs = append(q.jobs, jobs...)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front job without blocking.
// Returns (nil, false) if the queue is empty.
func (q *jobQueue) TryDequeue() (*job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	j := q.jobs[0]

	// Nil out the slot so the backing array does not retain settled jobs.
	q.jobs[0] = nil
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}

	return j, true
}

// Wait returns a channel that signals when jobs may be available.
// The channel is closed when the queue is closed.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Closed reports whether Close has been called.
func (q *jobQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting jobs and returns those still queued.
// Wakes any blocked waiters by closing the signal channel.
func (q *jobQueue) Close() []*job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)

	rest := q.jobs
	q.jobs = nil
	return rest
}

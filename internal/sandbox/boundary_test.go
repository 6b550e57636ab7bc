package sandbox

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandcalc/internal/ir"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMounted returns a mounted boundary that is unmounted on cleanup.
func newMounted(t *testing.T, opts ...Option) *Boundary {
	t.Helper()
	b := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	b.Mount()
	t.Cleanup(b.Unmount)
	return b
}

func request(source string, timeoutMs int64) ir.EvaluationRequest {
	return ir.EvaluationRequest{Source: source, RequestedAt: time.Now(), TimeoutMs: timeoutMs}
}

func mustEvaluate(t *testing.T, b *Boundary, source string) ir.EvaluationResponse {
	t.Helper()
	resp, err := b.Evaluate(context.Background(), request(source, 2000))
	require.NoError(t, err)
	return resp
}

func requireResult(t *testing.T, resp ir.EvaluationResponse, expected string) {
	t.Helper()
	result, ok := resp.Result()
	require.True(t, ok, "expected success, got error %q", resp.Err())
	assert.Equal(t, expected, result)
}

func TestBoundary_NeverMounted(t *testing.T) {
	b := New(WithLogger(quietLogger()))

	_, err := b.Evaluate(context.Background(), request("1", 100))
	require.ErrorIs(t, err, ErrBoundaryNeverMounted)
	assert.Equal(t, StateUnmounted, b.State())
}

func TestBoundary_MountBecomesReady(t *testing.T) {
	b := newMounted(t)

	require.Eventually(t, func() bool {
		return b.State() == StateReady
	}, time.Second, 5*time.Millisecond)
}

func TestBoundary_EvaluateSimple(t *testing.T) {
	b := newMounted(t)

	requireResult(t, mustEvaluate(t, b, "1 + 1"), "2")
}

func TestBoundary_ResponseTiming(t *testing.T) {
	base := time.Unix(1000, 0)
	var mu sync.Mutex
	tick := 0
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	b := newMounted(t, WithNow(now))

	resp := mustEvaluate(t, b, "1")
	assert.True(t, resp.EndTime().After(resp.StartTime()))
}

func TestBoundary_RenderValues(t *testing.T) {
	b := newMounted(t)

	tests := []struct {
		source   string
		expected string
	}{
		{"'hello'", `"hello"`},
		{`"4" + "2"`, `"42"`},
		{"'say \"hi\"'", `"say \"hi\""`},
		{"undefined", "undefined"},
		{"null", "null"},
		{"true", "true"},
		{"0.1 + 0.2", "0.30000000000000004"},
		{"1 / 0", "Infinity"},
		{"({labels: [1, 2], results: [10, null]})", `{"labels":[1,2],"results":[10,null]}`},
		{"[1, 'a']", `[1,"a"]`},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			requireResult(t, mustEvaluate(t, b, tt.source), tt.expected)
		})
	}
}

func TestBoundary_RenderFunction(t *testing.T) {
	b := newMounted(t)

	resp := mustEvaluate(t, b, "(function (a) { return a; })")
	result, ok := resp.Result()
	require.True(t, ok)
	assert.Contains(t, result, "return a")
}

func TestBoundary_ScopePersistsAcrossEvaluations(t *testing.T) {
	b := newMounted(t)

	requireResult(t, mustEvaluate(t, b, "var x = 40; 'declared'"), `"declared"`)
	requireResult(t, mustEvaluate(t, b, "x + 2"), "42")
}

func TestBoundary_DependencyRoundTrip(t *testing.T) {
	b := newMounted(t)

	requireResult(t, mustEvaluate(t, b, `__bind("dep_n1_v1", __deepFreeze(2));`), "undefined")
	requireResult(t, mustEvaluate(t, b, "42 + dep_n1_v1"), "44")
}

func TestBoundary_BoundValuesAreDeepFrozen(t *testing.T) {
	b := newMounted(t)

	mustEvaluate(t, b, `__bind("dep_1_v1", __deepFreeze({a: {b: [1, 2]}}));`)

	// Sloppy mode: writes are silently ignored.
	requireResult(t, mustEvaluate(t, b, "dep_1_v1.a.b[0] = 99; dep_1_v1.a.b[0]"), "1")
	requireResult(t, mustEvaluate(t, b, "dep_1_v1 = 5; dep_1_v1.a.b.length"), "2")

	// Strict mode: writes throw.
	resp := mustEvaluate(t, b, "'use strict'; dep_1_v1.a.c = 1;")
	assert.False(t, resp.OK())
	assert.Contains(t, resp.Err(), "TypeError")

	resp = mustEvaluate(t, b, "dep_1_v1.a.b.push(3)")
	assert.False(t, resp.OK(), "frozen arrays cannot grow")
}

func TestBoundary_HelpersCannotBeReplaced(t *testing.T) {
	b := newMounted(t)

	mustEvaluate(t, b, "__deepFreeze = function (v) { return v; }; __bind = null;")
	mustEvaluate(t, b, `__bind("dep_2_v1", __deepFreeze({n: 1}));`)
	requireResult(t, mustEvaluate(t, b, "Object.isFrozen(dep_2_v1)"), "true")
}

func TestBoundary_RebindReplacesValue(t *testing.T) {
	b := newMounted(t)

	mustEvaluate(t, b, `__bind("dep_3_v1", __deepFreeze(1));`)
	mustEvaluate(t, b, `__bind("dep_3_v1", __deepFreeze(2));`)
	requireResult(t, mustEvaluate(t, b, "dep_3_v1"), "2")
}

func TestBoundary_BoundGlobalsCannotBeRedefined(t *testing.T) {
	b := newMounted(t)

	mustEvaluate(t, b, `__bind("dep_5_v1", __deepFreeze(1));`)

	resp := mustEvaluate(t, b, `Object.defineProperty(globalThis, "dep_5_v1", {value: 99}); dep_5_v1`)
	assert.False(t, resp.OK())
	assert.Contains(t, resp.Err(), "TypeError")
	requireResult(t, mustEvaluate(t, b, "dep_5_v1"), "1")

	requireResult(t, mustEvaluate(t, b, "delete dep_5_v1"), "false")
	requireResult(t, mustEvaluate(t, b, "dep_5_v1"), "1")

	mustEvaluate(t, b, `__bind("dep_5_v1", __deepFreeze(2));`)
	requireResult(t, mustEvaluate(t, b, "dep_5_v1"), "2")
}

func TestBoundary_InvalidRequest(t *testing.T) {
	b := newMounted(t)

	resp, err := b.Evaluate(context.Background(), ir.EvaluationRequest{Source: "1", RequestedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.True(t, strings.HasPrefix(resp.Err(), ir.InvalidRequestPrefix), resp.Err())
	assert.Zero(t, b.Pending())

	requireResult(t, mustEvaluate(t, b, "1 + 1"), "2")
}

func TestBoundary_RuntimeError(t *testing.T) {
	b := newMounted(t)

	resp := mustEvaluate(t, b, "throw new Error('boom')")
	require.False(t, resp.OK())
	assert.Equal(t, "Error: boom", resp.Err())

	resp = mustEvaluate(t, b, "notDefined + 1")
	require.False(t, resp.OK())
	assert.Contains(t, resp.Err(), "ReferenceError")

	resp = mustEvaluate(t, b, "1 +")
	require.False(t, resp.OK())
	assert.NotEmpty(t, resp.Err())

	// The context stays usable after failures.
	requireResult(t, mustEvaluate(t, b, "2 * 3"), "6")
}

func TestBoundary_DebugIncludesStack(t *testing.T) {
	b := newMounted(t)

	req := request("function f() { throw new Error('deep'); }\nf();", 1000)
	req.Debug = true
	resp, err := b.Evaluate(context.Background(), req)
	require.NoError(t, err)
	require.False(t, resp.OK())
	assert.Contains(t, resp.Err(), "deep")
	assert.Contains(t, resp.Err(), "at f")
}

func TestBoundary_NoHostCapabilities(t *testing.T) {
	b := newMounted(t)

	for _, name := range []string{"require", "fetch", "setTimeout", "process", "XMLHttpRequest"} {
		t.Run(name, func(t *testing.T) {
			requireResult(t, mustEvaluate(t, b, "typeof "+name), `"undefined"`)
		})
	}
}

func TestBoundary_EvaluationTimeout(t *testing.T) {
	b := newMounted(t)
	mustEvaluate(t, b, "0") // wait for Ready

	resp, err := b.Evaluate(context.Background(), request("while (true) {}", 50))
	require.NoError(t, err)
	require.False(t, resp.OK())
	assert.True(t, IsTimeoutMessage(resp.Err()), "got %q", resp.Err())
	assert.Equal(t, 0, b.Pending(), "timed out entry must be removed")

	// The runaway loop was interrupted; the context serves the next request.
	requireResult(t, mustEvaluate(t, b, "'alive'"), `"alive"`)
}

func TestBoundary_LoadTimeout(t *testing.T) {
	b := newMounted(t, WithLoadDelay(300*time.Millisecond))

	resp, err := b.Evaluate(context.Background(), request("1", 20))
	require.NoError(t, err)
	require.False(t, resp.OK())
	assert.Equal(t, MsgLoadTimeout, resp.Err())
	assert.Equal(t, StateLoading, b.State())

	// The boundary still becomes Ready later.
	require.Eventually(t, func() bool {
		return b.State() == StateReady
	}, 2*time.Second, 10*time.Millisecond)
	requireResult(t, mustEvaluate(t, b, "1"), "1")
}

func TestBoundary_ContextCancelled(t *testing.T) {
	b := newMounted(t)
	mustEvaluate(t, b, "0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := b.Evaluate(ctx, request("while (true) {}", 200))
	require.NoError(t, err)
	// Either the cancellation won or the reply was already claimed.
	if !resp.OK() {
		assert.Contains(t, []string{MsgCancelled, TimeoutMessage(200 * time.Millisecond)}, resp.Err())
	}
}

func TestBoundary_ResolveAtMostOnce(t *testing.T) {
	b := New(WithLogger(quietLogger()))

	ch := make(chan ir.ResponseEnvelope, 1)
	b.pending[7] = ch

	first, second := "first", "second"
	b.resolve(ir.ResponseEnvelope{Type: ir.EnvelopeResponse, EvaluationID: 7, Result: &first})
	b.resolve(ir.ResponseEnvelope{Type: ir.EnvelopeResponse, EvaluationID: 7, Result: &second})

	got := <-ch
	assert.Equal(t, "first", *got.Result)
	select {
	case extra := <-ch:
		t.Fatalf("resolved twice: %v", extra)
	default:
	}

	_, ok := b.take(7)
	assert.False(t, ok, "entry already removed")
}

func TestBoundary_UncorrelatedResponseDropped(t *testing.T) {
	b := New(WithLogger(quietLogger()))
	result := "late"

	assert.NotPanics(t, func() {
		b.resolve(ir.ResponseEnvelope{Type: ir.EnvelopeResponse, EvaluationID: 999, Result: &result})
	})
	assert.Equal(t, 0, b.Pending())
}

func TestBoundary_MalformedEnvelope(t *testing.T) {
	b := New(WithLogger(quietLogger()))

	resp, err := b.respond(ir.ResponseEnvelope{Type: ir.EnvelopeResponse, EvaluationID: 1}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, MsgMalformed, resp.Err())
}

func TestBoundary_EvaluationIDsIncrease(t *testing.T) {
	clock := NewClockAt(41)
	b := newMounted(t, WithClock(clock))

	mustEvaluate(t, b, "1")
	mustEvaluate(t, b, "2")
	assert.Equal(t, int64(43), clock.Current())
}

func TestBoundary_ConsoleCapture(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	b := New(WithLogger(logger))
	b.Mount()
	t.Cleanup(b.Unmount)

	req := request("console.log('hello', 42); console.warn('careful'); 1", 1000)
	req.Log = true
	resp, err := b.Evaluate(context.Background(), req)
	require.NoError(t, err)
	requireResult(t, resp, "1")

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	assert.Contains(t, out, "hello 42")
	assert.Contains(t, out, "warn: careful")
}

func TestBoundary_ConsoleIgnoredWithoutLog(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil))

	b := New(WithLogger(logger))
	b.Mount()
	t.Cleanup(b.Unmount)

	resp, err := b.Evaluate(context.Background(), request("console.log('quiet'); 1", 1000))
	require.NoError(t, err)
	requireResult(t, resp, "1")

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, buf.String(), "quiet")
}

func TestBoundary_UnmountAndRemount(t *testing.T) {
	b := newMounted(t)
	mustEvaluate(t, b, "var kept = 1;")

	b.Unmount()
	assert.Equal(t, StateUnmounted, b.State())

	resp := mustEvaluate(t, b, "kept")
	assert.Equal(t, MsgUnmounted, resp.Err())

	b.Mount()
	resp = mustEvaluate(t, b, "typeof kept")
	requireResult(t, resp, `"undefined"`)
}

func TestBoundary_UnmountFailsOutstanding(t *testing.T) {
	b := newMounted(t)
	mustEvaluate(t, b, "0")

	done := make(chan ir.EvaluationResponse, 1)
	go func() {
		resp, _ := b.Evaluate(context.Background(), request("while (true) {}", 5000))
		done <- resp
	}()

	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, 5*time.Millisecond)
	b.Unmount()

	select {
	case resp := <-done:
		assert.Equal(t, MsgUnmounted, resp.Err())
	case <-time.After(time.Second):
		t.Fatal("outstanding request was not failed on unmount")
	}
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

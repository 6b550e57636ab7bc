package metrics

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandcalc/internal/engine"
	"github.com/roach88/sandcalc/internal/ir"
	"github.com/roach88/sandcalc/internal/sandbox"
)

var _ engine.Observer = (*Collector)(nil)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(""))
	assert.Equal(t, "evaluation_timeout", Outcome(string(engine.ErrCodeEvaluationTimeout)))
	assert.Equal(t, "missing_dependency", Outcome(string(engine.ErrCodeMissingDependency)))
}

func TestCollector_ObserveEvaluation(t *testing.T) {
	c := New()

	c.ObserveEvaluation("formula", "", 5*time.Millisecond)
	c.ObserveEvaluation("formula", "", 7*time.Millisecond)
	c.ObserveEvaluation("formula", "RUNTIME_ERROR", time.Millisecond)
	c.ObserveEvaluation("injection", "", 2*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.evaluations.WithLabelValues("formula", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("formula", "runtime_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("injection", "ok")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.evaluations))

	assert.Equal(t, uint64(3), histogramCount(t, c, "formula"))
	assert.Equal(t, uint64(1), histogramCount(t, c, "injection"))
}

func TestCollector_ObserveQueueDepth(t *testing.T) {
	c := New()

	c.ObserveQueueDepth(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(c.queueDepth))

	c.ObserveQueueDepth(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.queueDepth))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	a := New()
	b := New()

	a.ObserveEvaluation("raw", "", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.evaluations.WithLabelValues("raw", "ok")))
	assert.Equal(t, 0, testutil.CollectAndCount(b.evaluations))
}

func TestCollector_WriteText(t *testing.T) {
	c := New()
	c.ObserveEvaluation("formula", "", 3*time.Millisecond)
	c.ObserveQueueDepth(2)

	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, `sandcalc_evaluations_total{outcome="ok",stage="formula"} 1`)
	assert.Contains(t, out, "sandcalc_queue_depth 2")
	assert.Contains(t, out, "# TYPE sandcalc_evaluation_duration_seconds histogram")
}

func TestCollector_WiredIntoEngine(t *testing.T) {
	c := New()

	boundary := sandbox.New()
	boundary.Mount()
	defer boundary.Unmount()

	eng := engine.New(boundary, engine.WithObserver(c))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = eng.Run(ctx) }()

	resp, err := eng.EvaluateFormula(ctx, ir.Component{
		ID:            ir.NewComponentID(2, 1),
		Kind:          ir.KindValue,
		Source:        "dep_1_v1 + 1",
		DependencyIDs: []ir.ComponentID{ir.NewComponentID(1, 1)},
	}, engine.DependencyValues{"1@1": ptr("41")}, 0)
	require.NoError(t, err)
	out, ok := resp.Result()
	require.True(t, ok, resp.Err())
	assert.Equal(t, "42", out)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("injection", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("formula", "ok")))
}

func histogramCount(t *testing.T, c *Collector, stage string) uint64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "sandcalc_evaluation_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue(m, "stage") == stage {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func ptr(s string) *string { return &s }

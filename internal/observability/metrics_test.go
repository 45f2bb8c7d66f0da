package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTool("create_task", true, 10*time.Millisecond)
	m.RecordTool("create_task", false, time.Millisecond)
	m.RecordTool("read_file", true, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("create_task", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("create_task", "failure")))

	end := m.TurnStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveTurns))
	end("done")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveTurns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("done")))

	m.RecordDispatch("codex")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentDispatches.WithLabelValues("codex")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordTool("x", true, 0)
	m.TurnStarted()("error")
	m.RecordModelRequest()
	m.TerminalOpened()
	m.TerminalClosed()
	m.ClientConnected()
	m.ClientDisconnected()
	m.RecordDispatch("claude-code")
}

func TestTracer(t *testing.T) {
	tr := NewTracerWithProvider(noop.NewTracerProvider())
	ctx, span := tr.TraceTurn(context.Background(), "m")
	_, child := tr.TraceToolExecution(ctx, "list_tasks")
	RecordError(child, errors.New("boom"))
	RecordError(child, nil)
	child.End()
	span.End()

	var nilTracer *Tracer
	_, s := nilTracer.Start(context.Background(), "x", "k", 1, "dangling")
	s.End()
}

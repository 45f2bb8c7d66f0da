// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing helpers shared by the agent, tool and transport layers.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector taskpilot exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ToolCalls       *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
	Turns           *prometheus.CounterVec
	ModelRequests   prometheus.Counter
	ActiveTurns     prometheus.Gauge
	Terminals       prometheus.Gauge
	WSConnections   prometheus.Gauge
	AgentDispatches *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpilot_tool_calls_total",
			Help: "Tool invocations by tool name and outcome",
		}, []string{"tool", "outcome"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskpilot_tool_duration_seconds",
			Help:    "Tool handler latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpilot_agent_turns_total",
			Help: "Completed agent turns by terminal state",
		}, []string{"result"}),
		ModelRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskpilot_model_requests_total",
			Help: "Streamed model requests issued",
		}),
		ActiveTurns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskpilot_agent_active_turns",
			Help: "Agent turns currently in flight",
		}),
		Terminals: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskpilot_terminals_open",
			Help: "Open terminal sessions",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskpilot_websocket_connections",
			Help: "Connected WebSocket clients",
		}),
		AgentDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpilot_agent_dispatches_total",
			Help: "Tasks sent to external coding agents",
		}, []string{"agent"}),
	}
}

func (m *Metrics) RecordTool(tool string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// TurnStarted marks a turn in flight and returns the func that ends it.
func (m *Metrics) TurnStarted() func(result string) {
	if m == nil {
		return func(string) {}
	}
	m.ActiveTurns.Inc()
	return func(result string) {
		m.ActiveTurns.Dec()
		m.Turns.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) RecordModelRequest() {
	if m == nil {
		return
	}
	m.ModelRequests.Inc()
}

func (m *Metrics) TerminalOpened() {
	if m == nil {
		return
	}
	m.Terminals.Inc()
}

func (m *Metrics) TerminalClosed() {
	if m == nil {
		return
	}
	m.Terminals.Dec()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

func (m *Metrics) RecordDispatch(agent string) {
	if m == nil {
		return
	}
	m.AgentDispatches.WithLabelValues(agent).Inc()
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇总服务暴露的 Prometheus 指标。所有 Record 方法在 nil 接收者上是空操作。
type Metrics struct {
	registry *prometheus.Registry

	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	SessionsActive    prometheus.Gauge
	ScreenTransitions *prometheus.CounterVec
	CallsActive       prometheus.Gauge
	WidgetEvents      *prometheus.CounterVec

	CompletionsTotal *prometheus.CounterVec
	ToolCallsTotal   *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avatar_call"
	}

	registry := prometheus.NewRegistry()

	apiRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of conversational video API requests",
		},
		[]string{"endpoint", "status"},
	)

	apiRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Conversational video API request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of browser sessions with a live screen controller",
		},
	)

	screenTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screen_transitions_total",
			Help:      "Screen state machine transitions",
		},
		[]string{"event"},
	)

	callsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of call frames currently alive",
		},
	)

	widgetEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "widget_events_total",
			Help:      "Events received from the call widget",
		},
		[]string{"type"},
	)

	completionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Chat completion requests served by the custom LLM server",
		},
		[]string{"provider", "stream", "status"},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations executed by the custom LLM server",
		},
		[]string{"tool", "status"},
	)

	registry.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		sessionsActive,
		screenTransitions,
		callsActive,
		widgetEvents,
		completionsTotal,
		toolCallsTotal,
	)

	return &Metrics{
		registry:           registry,
		APIRequestsTotal:   apiRequestsTotal,
		APIRequestDuration: apiRequestDuration,
		SessionsActive:     sessionsActive,
		ScreenTransitions:  screenTransitions,
		CallsActive:        callsActive,
		WidgetEvents:       widgetEvents,
		CompletionsTotal:   completionsTotal,
		ToolCallsTotal:     toolCallsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAPIRequest records a completed request against the video API.
func (m *Metrics) RecordAPIRequest(endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SessionOpened 记录新建的浏览器会话。
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionClosed 记录关闭的浏览器会话。
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// RecordTransition 记录一次界面状态迁移。
func (m *Metrics) RecordTransition(event string) {
	if m == nil {
		return
	}
	m.ScreenTransitions.WithLabelValues(event).Inc()
}

// CallStarted 记录通话组件被创建。
func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

// CallEnded 记录通话组件被销毁。
func (m *Metrics) CallEnded() {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
}

// RecordWidgetEvent 记录通话组件上报的事件。
func (m *Metrics) RecordWidgetEvent(eventType string) {
	if m == nil {
		return
	}
	m.WidgetEvents.WithLabelValues(eventType).Inc()
}

// RecordCompletion records a served chat completion.
func (m *Metrics) RecordCompletion(provider string, stream bool, status string) {
	if m == nil {
		return
	}
	streamLabel := "false"
	if stream {
		streamLabel = "true"
	}
	m.CompletionsTotal.WithLabelValues(provider, streamLabel, status).Inc()
}

// RecordToolCall records a tool execution outcome.
func (m *Metrics) RecordToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

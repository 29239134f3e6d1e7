// Package metrics provides Prometheus metrics for the courtside service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service exposes.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Event stream
	streamMessages        prometheus.Counter
	streamDecodeFailures  prometheus.Counter
	streamEventsByType    *prometheus.CounterVec
	streamSubscriberPanic prometheus.Counter
	streamState           prometheus.Gauge
	streamConnects        *prometheus.CounterVec
	streamReconnects      prometheus.Counter
	streamPayloadsSent    prometheus.Counter

	// Interpreter
	triggersByKind    *prometheus.CounterVec
	unresolvedActors  *prometheus.CounterVec
	scoreboardUpdates prometheus.Counter

	// Roster reconciliation
	swapsProposed    prometheus.Counter
	swapsPersisted   prometheus.Counter
	swapsFailed      prometheus.Counter
	swapsRolledBack  prometheus.Counter
	persistLatency   prometheus.Histogram
	persistQueueSize prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	liveViewClients     prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "courtside",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		enabled:          true,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(subsystem, name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(subsystem, name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all collectors
	auto := promauto.With(m.registry)

	m.streamMessages = m.counter("stream", "messages_received_total", "Frames received from the match event source")
	m.streamDecodeFailures = m.counter("stream", "decode_failures_total", "Frames dropped because they did not decode as a game event")
	m.streamEventsByType = m.counterVec("stream", "events_dispatched_total", "Decoded events delivered to subscribers", "type")
	m.streamSubscriberPanic = m.counter("stream", "subscriber_panics_total", "Subscriber callbacks that panicked during dispatch")
	m.streamState = m.gauge("stream", "connection_state", "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting")
	m.streamConnects = m.counterVec("stream", "connect_attempts_total", "Dial attempts by outcome", "outcome")
	m.streamReconnects = m.counter("stream", "reconnect_attempts_total", "Automatic reconnect attempts scheduled")
	m.streamPayloadsSent = m.counter("stream", "initial_payloads_sent_total", "Team payloads written to the event source")

	m.triggersByKind = m.counterVec("interpreter", "triggers_total", "Animation triggers emitted", "kind")
	m.unresolvedActors = m.counterVec("interpreter", "unresolved_actors_total", "Event actors that matched no displayed entity", "type")
	m.scoreboardUpdates = m.counter("interpreter", "scoreboard_updates_total", "Events that updated the live scoreboard")

	m.swapsProposed = m.counter("reconcile", "swaps_proposed_total", "Swap proposals applied optimistically")
	m.swapsPersisted = m.counter("reconcile", "swaps_persisted_total", "Swaps confirmed by the roster store")
	m.swapsFailed = m.counter("reconcile", "swaps_failed_total", "Swaps the roster store rejected or could not be reached for")
	m.swapsRolledBack = m.counter("reconcile", "rollbacks_total", "Roster views rebuilt after a failed persist")
	m.persistLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "reconcile",
		Name:        "persist_latency_ms",
		Help:        "Roster store swap latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.persistQueueSize = m.gauge("reconcile", "persist_queue_size", "Swaps waiting to be persisted")

	m.httpRequests = m.counterVec("http", "requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "request_duration_ms",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.liveViewClients = m.gauge("http", "live_view_clients", "Connected live match view websocket clients")
}

// GetRegistry returns the registry all package-level helpers record into.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

func enabled() bool { return globalManager != nil && globalManager.enabled }

// RecordStreamMessage counts one inbound frame.
func RecordStreamMessage() {
	if enabled() {
		globalManager.streamMessages.Inc()
	}
}

// RecordStreamDecodeFailure counts one dropped frame.
func RecordStreamDecodeFailure() {
	if enabled() {
		globalManager.streamDecodeFailures.Inc()
	}
}

// RecordStreamEvent counts one dispatched event by type.
func RecordStreamEvent(eventType string) {
	if enabled() {
		globalManager.streamEventsByType.WithLabelValues(eventType).Inc()
	}
}

// RecordSubscriberPanic counts a recovered subscriber panic.
func RecordSubscriberPanic() {
	if enabled() {
		globalManager.streamSubscriberPanic.Inc()
	}
}

// UpdateStreamState sets the connection state gauge.
func UpdateStreamState(state int) {
	if enabled() {
		globalManager.streamState.Set(float64(state))
	}
}

// RecordConnectAttempt counts a dial by outcome ("ok", "error", "cancelled").
func RecordConnectAttempt(outcome string) {
	if enabled() {
		globalManager.streamConnects.WithLabelValues(outcome).Inc()
	}
}

// RecordReconnect counts a scheduled reconnect.
func RecordReconnect() {
	if enabled() {
		globalManager.streamReconnects.Inc()
	}
}

// RecordPayloadSent counts a team payload write.
func RecordPayloadSent() {
	if enabled() {
		globalManager.streamPayloadsSent.Inc()
	}
}

// RecordTrigger counts an animation trigger by kind.
func RecordTrigger(kind string) {
	if enabled() {
		globalManager.triggersByKind.WithLabelValues(kind).Inc()
	}
}

// RecordUnresolvedActor counts an actor that matched no entity.
func RecordUnresolvedActor(eventType string) {
	if enabled() {
		globalManager.unresolvedActors.WithLabelValues(eventType).Inc()
	}
}

// RecordScoreboardUpdate counts a scoreboard-affecting event.
func RecordScoreboardUpdate() {
	if enabled() {
		globalManager.scoreboardUpdates.Inc()
	}
}

// RecordSwapProposed counts an optimistic swap.
func RecordSwapProposed() {
	if enabled() {
		globalManager.swapsProposed.Inc()
	}
}

// RecordSwapPersisted counts a confirmed swap and its latency.
func RecordSwapPersisted(latencyMs float64) {
	if enabled() {
		globalManager.swapsPersisted.Inc()
		globalManager.persistLatency.Observe(latencyMs)
	}
}

// RecordSwapFailed counts a failed persist and its latency.
func RecordSwapFailed(latencyMs float64) {
	if enabled() {
		globalManager.swapsFailed.Inc()
		globalManager.persistLatency.Observe(latencyMs)
	}
}

// RecordRollback counts a rebuilt roster view.
func RecordRollback() {
	if enabled() {
		globalManager.swapsRolledBack.Inc()
	}
}

// UpdatePersistQueueSize sets the persist backlog gauge.
func UpdatePersistQueueSize(n int) {
	if enabled() {
		globalManager.persistQueueSize.Set(float64(n))
	}
}

// RecordHTTPRequest records HTTP request count.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if enabled() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if enabled() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// UpdateLiveViewClients sets the live view client gauge.
func UpdateLiveViewClients(n int) {
	if enabled() {
		globalManager.liveViewClients.Set(float64(n))
	}
}

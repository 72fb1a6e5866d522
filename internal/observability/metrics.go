// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	EventsDecoded   *prometheus.CounterVec
	DecodeErrors    prometheus.Counter
	TradesIngested  prometheus.Counter
	TradesRejected  prometheus.Counter
	EventErrors     *prometheus.CounterVec
	ActiveLanes     prometheus.Gauge
	QueueDepth      prometheus.Gauge
	HighestSlotSeen prometheus.Gauge

	// Storage metrics
	TierLatency   *prometheus.HistogramVec
	TierErrors    *prometheus.CounterVec
	TierFallbacks *prometheus.CounterVec

	// Solana metrics
	RPCCallLatency *prometheus.HistogramVec
	WSReconnects   prometheus.Counter

	// Chart metrics
	ActiveSessions     prometheus.Gauge
	MessagesSent       prometheus.Counter
	SessionsTerminated *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pump_candles"
	}

	return &Metrics{
		// Ingestion metrics
		EventsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_decoded_total",
			Help:      "Total number of pump.fun events decoded by type",
		}, []string{"event_type"}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_errors_total",
			Help:      "Total number of program data lines that failed to decode",
		}),
		TradesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_ingested_total",
			Help:      "Total number of trades written to at least one tier",
		}),
		TradesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_rejected_total",
			Help:      "Total number of trades dropped by validation",
		}),
		EventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_errors_total",
			Help:      "Total number of event handling errors by type",
		}, []string{"event_type", "error_type"}),
		ActiveLanes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "active_lanes",
			Help:      "Current number of per-mint dispatch lanes",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Events waiting in the decode queue",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		// Storage metrics
		TierLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "tier_latency_seconds",
			Help:      "Storage tier call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier", "operation"}),
		TierErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "tier_errors_total",
			Help:      "Total number of storage tier errors",
		}, []string{"tier", "operation"}),
		TierFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "fallbacks_total",
			Help:      "Total number of reads served by the durable tier after a cache failure",
		}, []string{"operation"}),

		// Solana metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of websocket reconnects",
		}),

		// Chart metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chart",
			Name:      "active_sessions",
			Help:      "Current number of streaming chart sessions",
		}),
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chart",
			Name:      "messages_sent_total",
			Help:      "Total number of candle messages sent to clients",
		}),
		SessionsTerminated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chart",
			Name:      "sessions_terminated_total",
			Help:      "Total number of terminated sessions by reason",
		}, []string{"reason"}),

		// Health metrics
		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventDecoded increments the decoded events counter.
func RecordEventDecoded(eventType string) {
	DefaultMetrics.EventsDecoded.WithLabelValues(eventType).Inc()
}

// RecordDecodeError increments the decode errors counter.
func RecordDecodeError() {
	DefaultMetrics.DecodeErrors.Inc()
}

// RecordTradeIngested counts a stored trade and updates the health timestamp.
func RecordTradeIngested() {
	DefaultMetrics.TradesIngested.Inc()
	DefaultMetrics.LastSuccessfulIngestion.Set(float64(time.Now().Unix()))
}

// RecordTradeRejected increments the rejected trades counter.
func RecordTradeRejected() {
	DefaultMetrics.TradesRejected.Inc()
}

// RecordEventError records an event handling error.
func RecordEventError(eventType, errorType string) {
	DefaultMetrics.EventErrors.WithLabelValues(eventType, errorType).Inc()
}

// UpdateActiveLanes sets the dispatch lane gauge.
func UpdateActiveLanes(n int) {
	DefaultMetrics.ActiveLanes.Set(float64(n))
}

// UpdateQueueDepth sets the decode queue gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordTierCall records storage tier latency and errors.
func RecordTierCall(tier, operation string, seconds float64, err error) {
	DefaultMetrics.TierLatency.WithLabelValues(tier, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.TierErrors.WithLabelValues(tier, operation).Inc()
	}
}

// RecordFallback counts a read that fell through to the durable tier.
func RecordFallback(operation string) {
	DefaultMetrics.TierFallbacks.WithLabelValues(operation).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSReconnect increments the websocket reconnects counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// SessionStarted increments the active sessions gauge.
func SessionStarted() {
	DefaultMetrics.ActiveSessions.Inc()
}

// SessionEnded decrements the active sessions gauge and records the reason.
func SessionEnded(reason string) {
	DefaultMetrics.ActiveSessions.Dec()
	DefaultMetrics.SessionsTerminated.WithLabelValues(reason).Inc()
}

// RecordMessageSent increments the sent messages counter.
func RecordMessageSent() {
	DefaultMetrics.MessagesSent.Inc()
}

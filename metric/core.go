package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the mirror.
const Namespace = "simmirror"

// Metrics contains the mirror-wide metrics shared by every component.
type Metrics struct {
	// Stream metrics, labelled by channel ("log", "snapshot", "command")
	ConnectionStatus  *prometheus.GaugeVec
	BytesReceived     *prometheus.CounterVec
	FramesDecoded     *prometheus.CounterVec
	PayloadsDropped   *prometheus.CounterVec
	ReconnectAttempts *prometheus.CounterVec
	LargeFrames       *prometheus.CounterVec

	// Reconciliation metrics
	ReconcileBatches  *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec
	RecordsApplied    *prometheus.CounterVec
	RecordsSkipped    *prometheus.CounterVec

	// Log ring
	LogRecords    prometheus.Gauge
	LogAppended   prometheus.Counter
	LogViewBuilds prometheus.Counter

	// Command channel and event publishing
	CommandsSent    *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates the core metric set. Collectors are unregistered until
// handed to a MetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "connection_status",
				Help:      "Connection status (0=disconnected, 1=connecting, 2=connected, 3=error)",
			},
			[]string{"channel"},
		),

		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "bytes_received_total",
				Help:      "Total bytes read from the socket",
			},
			[]string{"channel"},
		),

		FramesDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "frames_decoded_total",
				Help:      "Total length-prefixed frames decoded",
			},
			[]string{"channel"},
		),

		PayloadsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "payloads_dropped_total",
				Help:      "Total payloads dropped because they could not be decoded",
			},
			[]string{"channel", "reason"},
		),

		ReconnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "reconnect_attempts_total",
				Help:      "Total reconnect attempts issued by the supervisor",
			},
			[]string{"channel"},
		),

		LargeFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "large_frame_headers_total",
				Help:      "Frame headers declaring a length above the warning threshold",
			},
			[]string{"channel"},
		),

		ReconcileBatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "reconcile",
				Name:      "batches_total",
				Help:      "Total snapshot and delta batches applied",
			},
			[]string{"kind"},
		),

		ReconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "reconcile",
				Name:      "duration_seconds",
				Help:      "Time spent applying one batch",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"kind"},
		),

		RecordsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "reconcile",
				Name:      "records_applied_total",
				Help:      "Records upserted or removed per category",
			},
			[]string{"category", "op"},
		),

		RecordsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "reconcile",
				Name:      "records_skipped_total",
				Help:      "Records skipped because they did not decode or their key was invalid",
			},
			[]string{"category"},
		),

		LogRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "logring",
				Name:      "records",
				Help:      "Records currently held in the log ring",
			},
		),

		LogAppended: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "logring",
				Name:      "appended_total",
				Help:      "Total records appended to the log ring",
			},
		),

		LogViewBuilds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "logring",
				Name:      "view_rebuilds_total",
				Help:      "Total filtered view recomputations",
			},
		),

		CommandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "command",
				Name:      "sent_total",
				Help:      "Command lines sent, by outcome",
			},
			[]string{"status"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Change notifications published, by kind",
			},
			[]string{"kind"},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ConnectionStatus,
		c.BytesReceived,
		c.FramesDecoded,
		c.PayloadsDropped,
		c.ReconnectAttempts,
		c.LargeFrames,
		c.ReconcileBatches,
		c.ReconcileDuration,
		c.RecordsApplied,
		c.RecordsSkipped,
		c.LogRecords,
		c.LogAppended,
		c.LogViewBuilds,
		c.CommandsSent,
		c.EventsPublished,
	}
}

// RecordConnectionStatus stores the numeric connection state of a channel
func (c *Metrics) RecordConnectionStatus(channel string, state int) {
	c.ConnectionStatus.WithLabelValues(channel).Set(float64(state))
}

// RecordBytes adds n received bytes for a channel
func (c *Metrics) RecordBytes(channel string, n int) {
	c.BytesReceived.WithLabelValues(channel).Add(float64(n))
}

// RecordFrames adds n decoded frames for a channel
func (c *Metrics) RecordFrames(channel string, n int) {
	c.FramesDecoded.WithLabelValues(channel).Add(float64(n))
}

// RecordPayloadDropped increments the dropped payload counter
func (c *Metrics) RecordPayloadDropped(channel, reason string) {
	c.PayloadsDropped.WithLabelValues(channel, reason).Inc()
}

// RecordReconnect increments the reconnect attempt counter
func (c *Metrics) RecordReconnect(channel string) {
	c.ReconnectAttempts.WithLabelValues(channel).Inc()
}

// RecordLargeFrame increments the oversized header counter
func (c *Metrics) RecordLargeFrame(channel string) {
	c.LargeFrames.WithLabelValues(channel).Inc()
}

// RecordBatch counts one applied batch and its duration
func (c *Metrics) RecordBatch(kind string, duration time.Duration) {
	c.ReconcileBatches.WithLabelValues(kind).Inc()
	c.ReconcileDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordApplied adds n records for a category and operation ("upsert", "remove", "rebuild")
func (c *Metrics) RecordApplied(category, op string, n int) {
	if n <= 0 {
		return
	}
	c.RecordsApplied.WithLabelValues(category, op).Add(float64(n))
}

// RecordSkipped adds n skipped records for a category
func (c *Metrics) RecordSkipped(category string, n int) {
	if n <= 0 {
		return
	}
	c.RecordsSkipped.WithLabelValues(category).Add(float64(n))
}

// RecordLogAppend counts one append and the resulting ring size
func (c *Metrics) RecordLogAppend(size int) {
	c.LogAppended.Inc()
	c.LogRecords.Set(float64(size))
}

// RecordCommand counts a command send outcome ("ok", "busy", "error")
func (c *Metrics) RecordCommand(status string) {
	c.CommandsSent.WithLabelValues(status).Inc()
}

// RecordEventPublished counts one published change notification
func (c *Metrics) RecordEventPublished(kind string) {
	c.EventsPublished.WithLabelValues(kind).Inc()
}

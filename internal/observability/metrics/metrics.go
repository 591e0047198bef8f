package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "moose_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	pollCycles       *prometheus.CounterVec
	pollCycleLatency *prometheus.HistogramVec

	devicesClassified *prometheus.CounterVec
	statusChanges     *prometheus.CounterVec
	telemetryErrors   *prometheus.CounterVec

	siteAggregations *prometheus.CounterVec

	incidentEvents *prometheus.CounterVec
	reminders      *prometheus.CounterVec
	notifications  *prometheus.CounterVec

	queueDepth *prometheus.GaugeVec

	outboxDispatches       *prometheus.CounterVec
	outboxDispatchLatency  *prometheus.HistogramVec
	outboxDispatchedEvents *prometheus.CounterVec
)

// Init registers metrics and DB-backed gauges. Safe to call more than once.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		pollCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_cycles_total",
				Help: "Total device poll cycles by result",
			},
			[]string{"result"},
		)
		pollCycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_cycle_duration_seconds",
				Help:    "Device poll cycle duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"result"},
		)
		devicesClassified = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "devices_classified_total",
				Help: "Total device classifications by resulting status",
			},
			[]string{"status"},
		)
		statusChanges = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_status_changes_total",
				Help: "Total device status transitions",
			},
			[]string{"from", "to"},
		)
		telemetryErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_errors_total",
				Help: "Total upstream telemetry errors by kind",
			},
			[]string{"kind"},
		)
		siteAggregations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "site_aggregations_total",
				Help: "Total site aggregate recomputations by outcome",
			},
			[]string{"outcome"},
		)
		incidentEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "incident_events_total",
				Help: "Total incident lifecycle events",
			},
			[]string{"event"},
		)
		reminders = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reminders_total",
				Help: "Total daily reminders by result",
			},
			[]string{"result"},
		)
		notifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total notification deliveries by channel and result",
			},
			[]string{"channel", "result"},
		)
		queueDepth = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "queue_depth",
				Help: "Tasks waiting in the job queue",
			},
			[]string{"queue"},
		)

		outboxDispatches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_duration_seconds",
				Help:    "Outbox dispatch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchedEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_events_total",
				Help: "Outbox events by delivery outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			outboxDispatches,
			outboxDispatchLatency,
			outboxDispatchedEvents,
			pollCycles,
			pollCycleLatency,
			devicesClassified,
			statusChanges,
			telemetryErrors,
			siteAggregations,
			incidentEvents,
			reminders,
			notifications,
			queueDepth,
		)

		if db != nil {
			prometheus.MustRegister(newStateCollector(db, logger))
		}
	})
}

// ObservePollCycle records a full sweep.
func ObservePollCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if pollCycles != nil {
		pollCycles.WithLabelValues(result).Inc()
	}
	if pollCycleLatency != nil {
		pollCycleLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncDeviceClassified counts a device classification.
func IncDeviceClassified(status string) {
	if status == "" {
		status = "unknown"
	}
	if devicesClassified != nil {
		devicesClassified.WithLabelValues(status).Inc()
	}
}

// IncStatusChange counts a device transition.
func IncStatusChange(from, to string) {
	if from == "" {
		from = "none"
	}
	if statusChanges != nil {
		statusChanges.WithLabelValues(from, to).Inc()
	}
}

// IncTelemetryError counts an upstream failure.
func IncTelemetryError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if telemetryErrors != nil {
		telemetryErrors.WithLabelValues(kind).Inc()
	}
}

// IncSiteAggregation counts an aggregator run ("written" or "unchanged").
func IncSiteAggregation(outcome string) {
	if siteAggregations != nil {
		siteAggregations.WithLabelValues(outcome).Inc()
	}
}

// IncIncidentEvent counts incident lifecycle events.
func IncIncidentEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if incidentEvents != nil {
		incidentEvents.WithLabelValues(event).Inc()
	}
}

// IncReminder counts reminder outcomes.
func IncReminder(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reminders != nil {
		reminders.WithLabelValues(result).Inc()
	}
}

// IncNotification counts a delivery attempt.
func IncNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notifications != nil {
		notifications.WithLabelValues(channel, result).Inc()
	}
}

// SetQueueDepth reports the pending task count for a queue.
func SetQueueDepth(queue string, size int) {
	if queueDepth != nil {
		queueDepth.WithLabelValues(queue).Set(float64(size))
	}
}

// ObserveOutboxDispatch records one dispatch run.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatches != nil {
		outboxDispatches.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDispatchedEvents != nil {
		if sent > 0 {
			outboxDispatchedEvents.WithLabelValues("sent").Add(float64(sent))
		}
		if failed > 0 {
			outboxDispatchedEvents.WithLabelValues("failed").Add(float64(failed))
		}
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)

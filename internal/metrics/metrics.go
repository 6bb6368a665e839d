// Package metrics exposes relay counters and gauges to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "gesture_relay"
)

// Command outcome labels
const (
	StatusOK         = "ok"
	StatusValidation = "validation"
	StatusNotFound   = "not_found"
	StatusDropped    = "dropped"
	StatusError      = "error"
)

var (
	// CommandsTotal counts client commands by type and outcome
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of client commands processed",
		},
		[]string{"cmd", "status"},
	)

	// CommandDuration measures time spent handling a command inside the router
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command handling latency in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"cmd"},
	)

	// WorkerEventsTotal counts events received from the worker
	WorkerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_events_total",
			Help:      "Total number of events received from the worker",
		},
		[]string{"type"},
	)

	// MalformedFramesTotal counts frames that could not be parsed
	MalformedFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Total number of unparseable frames",
		},
		[]string{"source"}, // worker/client
	)

	// WorkerConnected is 1 while the worker link is up
	WorkerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_connected",
			Help:      "Whether the worker link is connected",
		},
	)

	// WorkerDialFailures counts failed attempts to reach the worker
	WorkerDialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_dial_failures_total",
			Help:      "Total number of failed worker dial attempts",
		},
	)

	// ClientsConnected tracks connected client sessions
	ClientsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_connected",
			Help:      "Number of connected client sessions",
		},
	)

	// ClientEvictions counts sessions dropped for falling behind
	ClientEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_evictions_total",
			Help:      "Total number of slow client sessions dropped",
		},
	)

	// GesturesTotal tracks configured gestures
	GesturesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gestures_total",
			Help:      "Number of configured gestures",
		},
	)

	// PersistsTotal counts gesture snapshot writes by outcome
	PersistsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persists_total",
			Help:      "Total number of gesture snapshot writes",
		},
		[]string{"status"}, // ok/error
	)

	// Info exposes build info
	Info = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Gesture relay build info",
		},
		[]string{"version", "go_version"},
	)

	// Uptime tracks uptime
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Relay uptime in seconds",
		},
	)
)

// InitInfo initializes the info metric
func InitInfo(version, goVersion string) {
	Info.WithLabelValues(version, goVersion).Set(1)
}

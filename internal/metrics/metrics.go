package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Record intake metrics
	RecordsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wxalarm_records_received_total",
			Help: "Total number of archive records received from the host",
		},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxalarm_records_dropped_total",
			Help: "Total number of records dropped before assessment",
		},
		[]string{"reason"}, // reason: stopped, decode
	)

	// Assessment metrics
	AssessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxalarm_assessments_total",
			Help: "Total number of per-alarm rule assessments",
		},
		[]string{"result"}, // result: set, clear, error
	)

	AssessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wxalarm_assess_duration_seconds",
			Help:    "Time taken to assess all alarms against one record",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	EvalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxalarm_eval_errors_total",
			Help: "Total number of rule evaluation failures",
		},
		[]string{"kind"}, // kind: undefined_variable, type_value, unexpected
	)

	// Transition metrics
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxalarm_transitions_total",
			Help: "Total number of alarm state transitions recorded",
		},
		[]string{"alarm", "to"}, // to: set, clear
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wxalarm_notifications_sent_total",
			Help: "Total number of email notifications delivered",
		},
	)

	NotificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wxalarm_notifications_failed_total",
			Help: "Total number of email notifications that failed delivery",
		},
	)

	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxalarm_notifications_suppressed_total",
			Help: "Total number of notifications suppressed without delivery",
		},
		[]string{"reason"}, // reason: first_state, no_params, no_recipients
	)

	RenderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxalarm_render_fallbacks_total",
			Help: "Total number of subject or body renders replaced by the garbled fallback",
		},
		[]string{"part"}, // part: subject, body
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxalarm_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

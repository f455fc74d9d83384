package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session Lifecycle Metrics
var (
	// SessionStartsTotal tracks tracking session starts by facing and result
	SessionStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeehunt_session_starts_total",
			Help: "Total tracking session starts by camera facing and result",
		},
		[]string{"facing", "result"},
	)

	// SessionStartDuration tracks how long camera acquisition takes in seconds
	SessionStartDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coffeehunt_session_start_duration_seconds",
			Help:    "Time from start request until the tracker is ready",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// ActiveSessions tracks tracking sessions currently holding a camera (0 or 1)
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coffeehunt_active_sessions",
			Help: "Tracking sessions currently holding a camera",
		},
	)

	// StateTransitionsTotal tracks orchestrator state transitions by target state
	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeehunt_state_transitions_total",
			Help: "Orchestrator state transitions by new state",
		},
		[]string{"state"},
	)

	// WinsTotal tracks rounds won
	WinsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coffeehunt_wins_total",
			Help: "Total rounds won by detecting the marker",
		},
	)
)

// Recording Metrics
var (
	// RecordingsTotal tracks recordings by outcome (started/skipped/finalized/failed)
	RecordingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeehunt_recordings_total",
			Help: "Recordings by outcome",
		},
		[]string{"outcome"},
	)

	// ArtifactBytes tracks the size of finalized video artifacts
	ArtifactBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coffeehunt_artifact_bytes",
			Help:    "Size of finalized video artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)
)

// Intent Metrics
var (
	// IntentsTotal tracks user intents by name and result
	IntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeehunt_intents_total",
			Help: "User intents by intent and result",
		},
		[]string{"intent", "result"},
	)

	// EventSubscribers tracks connected status stream clients
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coffeehunt_event_subscribers",
			Help: "Connected status stream clients",
		},
	)
)

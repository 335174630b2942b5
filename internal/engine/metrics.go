package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadcmd",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Processed events by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadcmd",
			Subsystem: "engine",
			Name:      "dispatch_total",
			Help:      "Dispatcher calls by action kind and result (ok, noop, error).",
		},
		[]string{"kind", "result"},
	)

	eventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threadcmd",
			Subsystem: "engine",
			Name:      "event_duration_seconds",
			Help:      "Time from claim to recorded outcome.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(eventsTotal, dispatchTotal, eventDuration)
}

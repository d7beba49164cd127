// Package obs holds the process-wide prometheus instrumentation for the
// job subsystem, the fanout hub, and the cleanup sweep.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_jobs_processed_total",
			Help: "Jobs pulled off a queue by outcome.",
		},
		[]string{"queue", "outcome"},
	)

	FanoutEventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_fanout_events_total",
			Help: "Events broadcast to organization rooms.",
		},
		[]string{"event"},
	)

	FanoutEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_fanout_dropped_total",
			Help: "Event deliveries dropped because a connection's send buffer was full.",
		},
	)

	SweepReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_sweep_reaped_total",
			Help: "Temporary templates reaped by the cleanup sweep.",
		},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(JobsProcessed, FanoutEventsEmitted, FanoutEventsDropped, SweepReaped)
}

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

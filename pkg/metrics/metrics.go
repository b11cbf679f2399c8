package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "porthouse_rpc_requests_total",
			Help: "Total number of RPC requests served, by request name and outcome",
		},
		[]string{"request", "outcome"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "porthouse_rpc_request_duration_seconds",
			Help:    "Caller-observed RPC round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"exchange"},
	)

	// Tracker metrics
	TrackerStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "porthouse_tracker_state_transitions_total",
			Help: "Total number of tracker state transitions, by resulting state",
		},
		[]string{"state"},
	)

	TrackerElevation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "porthouse_tracker_elevation_degrees",
			Help: "Last broadcast target elevation in degrees",
		},
	)

	// Rotator metrics
	RotatorMovesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "porthouse_rotator_moves_total",
			Help: "Total number of rotator position commands issued",
		},
	)

	RotatorAzimuth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "porthouse_rotator_azimuth_degrees",
			Help: "Last commanded rotator azimuth in degrees",
		},
	)

	RotatorElevation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "porthouse_rotator_elevation_degrees",
			Help: "Last commanded rotator elevation in degrees",
		},
	)

	// Scheduler metrics
	SchedulerPlacementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "porthouse_scheduler_placements_total",
			Help: "Total number of tasks the scheduler placed onto the timeline, by outcome",
		},
		[]string{"outcome"},
	)

	SchedulerActiveTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "porthouse_scheduler_active_tasks",
			Help: "Current number of tasks held in the active schedule",
		},
	)

	// Broker metrics
	BrokerReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "porthouse_broker_reconnects_total",
			Help: "Total number of broker reconnects performed after a dropped connection",
		},
	)
)

func init() {
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(TrackerStateTransitionsTotal)
	prometheus.MustRegister(TrackerElevation)
	prometheus.MustRegister(RotatorMovesTotal)
	prometheus.MustRegister(RotatorAzimuth)
	prometheus.MustRegister(RotatorElevation)
	prometheus.MustRegister(SchedulerPlacementsTotal)
	prometheus.MustRegister(SchedulerActiveTasks)
	prometheus.MustRegister(BrokerReconnectsTotal)
}

// Handler returns the Prometheus HTTP handler for a "/metrics" scrape
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for a single call or operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

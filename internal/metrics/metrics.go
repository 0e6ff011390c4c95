// Package metrics exposes the polling driver's counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindhd/internal/status"
)

const namespace = "remindhd"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics groups the collectors. The zero value is not usable; use New.
type Metrics struct {
	gatherer prometheus.Gatherer

	polls               *prometheus.CounterVec
	pollDuration        prometheus.Histogram
	consecutiveFailures prometheus.Gauge
	lastSuccess         prometheus.Gauge
	minutesToNext       prometheus.Gauge
	currentStatus       *prometheus.GaugeVec
	beaconSends         *prometheus.CounterVec
	reboots             prometheus.Counter
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWith(reg, reg)
}

// NewWith registers the collectors on reg and serves them from g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: g,
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Calendar polls by outcome.",
		}, []string{"outcome"}),
		pollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent fetching and evaluating the calendar.",
			Buckets:   prometheus.DefBuckets,
		}),
		consecutiveFailures: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Failed polls since the last success.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll.",
		}),
		minutesToNext: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "minutes_to_next_event",
			Help:      "Minutes to the next qualifying event, -1 when none.",
		}),
		currentStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "1 for the current availability status, 0 otherwise.",
		}, []string{"status"}),
		beaconSends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacon_sends_total",
			Help:      "Remote beacon updates by outcome.",
		}, []string{"outcome"}),
		reboots: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reboots_total",
			Help:      "Reboots requested by the failure policy.",
		}),
	}
}

// ObservePoll records a finished poll.
func (m *Metrics) ObservePoll(start time.Time, took time.Duration, err error, consecutiveFailures int) {
	m.pollDuration.Observe(took.Seconds())
	m.consecutiveFailures.Set(float64(consecutiveFailures))
	if err != nil {
		m.polls.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.polls.WithLabelValues(OutcomeSuccess).Inc()
	m.lastSuccess.Set(float64(start.Unix()))
}

// ObserveResult records the latest evaluation.
func (m *Metrics) ObserveResult(r status.Result) {
	m.minutesToNext.Set(float64(r.MinutesToNextEvent))
	for _, s := range status.All() {
		v := 0.0
		if s == r.Status {
			v = 1
		}
		m.currentStatus.WithLabelValues(string(s)).Set(v)
	}
}

// ObserveBeacon records a beacon send attempt.
func (m *Metrics) ObserveBeacon(err error) {
	if err != nil {
		m.beaconSends.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.beaconSends.WithLabelValues(OutcomeSuccess).Inc()
}

// ObserveReboot counts a reboot request.
func (m *Metrics) ObserveReboot() { m.reboots.Inc() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

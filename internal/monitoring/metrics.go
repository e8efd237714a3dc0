package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons recorded by Metrics.RecordRejected.
const (
	ReasonInvalidInput = "invalid_input"
	ReasonInvalidState = "invalid_state"
	ReasonCanceled     = "canceled"
)

// Metrics holds the tracker's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	TimestepsTotal prometheus.Counter
	RejectedTotal  *prometheus.CounterVec
	Nodes          prometheus.Gauge
	Edges          prometheus.Gauge
	MatchDuration  prometheus.Histogram
}

// NewMetrics creates the tracker collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TimestepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "overlap_timesteps_total",
			Help: "Snapshots accepted into the tracking graph.",
		}),
		RejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overlap_rejected_total",
			Help: "Snapshots rejected by the tracker, by reason.",
		}, []string{"reason"}),
		Nodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "overlap_nodes",
			Help: "Nodes in the current tracking graph.",
		}),
		Edges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "overlap_edges",
			Help: "Edges in the current tracking graph.",
		}),
		MatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlap_match_duration_seconds",
			Help:    "Time spent matching points between consecutive snapshots.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

// RecordTimestep counts an accepted snapshot and publishes the graph size.
func (m *Metrics) RecordTimestep(nodes, edges int) {
	if m == nil {
		return
	}
	m.TimestepsTotal.Inc()
	m.Nodes.Set(float64(nodes))
	m.Edges.Set(float64(edges))
}

// RecordRejected counts a rejected snapshot.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveMatch records the duration of one matching pass.
func (m *Metrics) ObserveMatch(d time.Duration) {
	if m == nil {
		return
	}
	m.MatchDuration.Observe(d.Seconds())
}

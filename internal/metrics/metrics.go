// Package metrics exposes Prometheus collectors for the readiness engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"walletgate/internal/models"
)

const namespace = "walletgate"

// Metrics holds all collectors.
type Metrics struct {
	evaluations      *prometheus.CounterVec
	modalShows       *prometheus.CounterVec
	flagFailures     *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	moves            prometheus.Counter
	lookups          prometheus.Counter
	lookupFailures   prometheus.Counter
	coalescedSamples prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readiness",
			Name:      "evaluations_total",
			Help:      "Readiness evaluations by resulting phase.",
		}, []string{"phase"}),
		modalShows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modal",
			Name:      "shows_total",
			Help:      "Gating modals presented to users by kind.",
		}, []string{"kind"}),
		flagFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flagstore",
			Name:      "failures_total",
			Help:      "Flag store operations that failed and were degraded.",
		}, []string{"op"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Authenticated sessions currently tracked.",
		}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proximity",
			Name:      "moves_total",
			Help:      "Significant moves emitted by the proximity detector.",
		}),
		lookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proximity",
			Name:      "lookups_total",
			Help:      "Payment suggestion lookups started.",
		}),
		lookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proximity",
			Name:      "lookup_failures_total",
			Help:      "Payment suggestion lookups that failed.",
		}),
		coalescedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proximity",
			Name:      "coalesced_samples_total",
			Help:      "Samples replaced in the pending slot while a lookup was in flight.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.evaluations,
			m.modalShows,
			m.flagFailures,
			m.activeSessions,
			m.moves,
			m.lookups,
			m.lookupFailures,
			m.coalescedSamples,
		)
	}
	return m
}

// Evaluation records a readiness evaluation.
func (m *Metrics) Evaluation(phase models.Phase) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(string(phase)).Inc()
}

// ModalShown records a modal presentation.
func (m *Metrics) ModalShown(kind models.ModalKind) {
	if m == nil {
		return
	}
	m.modalShows.WithLabelValues(string(kind)).Inc()
}

// FlagStoreFailure records a degraded flag store operation.
func (m *Metrics) FlagStoreFailure(op string) {
	if m == nil {
		return
	}
	m.flagFailures.WithLabelValues(op).Inc()
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionEnded decrements the active session gauge.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Move records a significant move.
func (m *Metrics) Move() {
	if m == nil {
		return
	}
	m.moves.Inc()
}

// Lookup records a started suggestion lookup.
func (m *Metrics) Lookup() {
	if m == nil {
		return
	}
	m.lookups.Inc()
}

// LookupFailure records a failed suggestion lookup.
func (m *Metrics) LookupFailure() {
	if m == nil {
		return
	}
	m.lookupFailures.Inc()
}

// SampleCoalesced records a pending sample being replaced.
func (m *Metrics) SampleCoalesced() {
	if m == nil {
		return
	}
	m.coalescedSamples.Inc()
}

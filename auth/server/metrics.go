package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks authentication outcomes for monitoring.
//
// Labels are bounded: sources and decisions are closed sets, and
// outcomes are one of "success", "rejected", "absent" or "error".
type Metrics struct {
	Resolutions *prometheus.CounterVec
	Decisions   *prometheus.CounterVec
	SignIns     *prometheus.CounterVec
	Handshakes  *prometheus.CounterVec
}

// NewMetrics registers and returns the auth metrics.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_resolutions_total",
			Help: "Credential resolution attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_guard_decisions_total",
			Help: "Route guard decisions by kind.",
		}, []string{"decision"}),
		SignIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_signins_total",
			Help: "Password sign-in attempts by outcome.",
		}, []string{"outcome"}),
		Handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_oauth_handshakes_total",
			Help: "OAuth handshake completions by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) resolution(source, outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) decision(kind string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(kind).Inc()
}

func (m *Metrics) signIn(outcome string) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) handshake(outcome string) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(outcome).Inc()
}

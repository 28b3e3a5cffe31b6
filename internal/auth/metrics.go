// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the registration and authentication counters.
const (
	resultSuccess = "success"
	resultInvalid = "invalid"
	resultError   = "error"
)

// Metrics contains Prometheus metrics for the auth service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registrations   *prometheus.CounterVec
	Authentications *prometheus.CounterVec
	HashDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers auth metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todosite_registrations_total",
				Help: "Total number of registration attempts by result",
			},
			[]string{"result"},
		),
		Authentications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todosite_authentications_total",
				Help: "Total number of authentication attempts by result",
			},
			[]string{"result"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "todosite_password_hash_seconds",
				Help:    "Time spent computing password hashes by operation",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(m.Registrations)
	reg.MustRegister(m.Authentications)
	reg.MustRegister(m.HashDuration)

	return m
}

func (m *Metrics) recordRegistration(result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) recordAuthentication(result string) {
	if m == nil {
		return
	}
	m.Authentications.WithLabelValues(result).Inc()
}

func (m *Metrics) observeHash(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.HashDuration.WithLabelValues(op).Observe(d.Seconds())
}

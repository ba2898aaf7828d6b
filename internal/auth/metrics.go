// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OperationsTotal counts service operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flickmate_auth_operations_total",
		Help: "Total number of authentication operations",
	},
	[]string{"operation", "outcome"},
)

// RefreshReuseTotal counts refresh tokens presented after rotation.
// Use RegisterMetrics to register this with a Prometheus registry.
var RefreshReuseTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "flickmate_auth_refresh_reuse_total",
		Help: "Total number of refresh token reuse detections",
	},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
	reg.MustRegister(RefreshReuseTotal)
}

// recordOperation increments OperationsTotal. The outcome is "success" or the
// error kind.
func recordOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

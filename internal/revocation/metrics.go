// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package revocation

import "github.com/prometheus/client_golang/prometheus"

// StoreErrorsTotal counts failed store calls by operation.
var StoreErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flickmate_revocation_store_errors_total",
		Help: "Total number of failed revocation store operations",
	},
	[]string{"operation"},
)

// RegisterMetrics registers the store collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(StoreErrorsTotal)
}

// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tutoring",
		Name:      "reconcile_outcomes_total",
		Help:      "Payment order reconciliations by signal source and outcome.",
	}, []string{"source", "outcome"})

	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tutoring",
		Name:      "bookings_created_total",
		Help:      "Bookings materialised by batch creation.",
	})

	BookingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tutoring",
		Name:      "booking_transitions_total",
		Help:      "Lifecycle transitions applied to bookings.",
	}, []string{"to"})

	QuotaDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tutoring",
		Name:      "quota_denials_total",
		Help:      "Questions refused because the daily quota was used up.",
	}, []string{"tier"})

	SweeperRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tutoring",
		Name:      "sweeper_orders_total",
		Help:      "Orders touched by the background sweeper.",
	}, []string{"action"})
)

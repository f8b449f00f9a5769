package controller

import (
	"github.com/henderiw/rangetable/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "controller"

var (
	updatesTotal = metrics.NewCounter(
		"updates_total",
		subsystem,
		"Number of range updates by outcome",
		[]string{"outcome"},
	)
	updateDuration = metrics.NewHistogramWithBuckets(
		"update_duration_seconds",
		subsystem,
		"Duration of a range update including dispatch",
		[]string{},
		prometheus.ExponentialBuckets(1e-6, 4, 12),
	)
	transitionsTotal = metrics.NewCounter(
		"transitions_total",
		subsystem,
		"Number of dispatched range transitions",
		[]string{"range_type", "transition"},
	)
	suppressedTotal = metrics.NewCounter(
		"suppressed_events_total",
		subsystem,
		"Number of transitions not dispatched",
		[]string{"reason"},
	)
	deferredTotal = metrics.NewCounter(
		"deferred_mutations_total",
		subsystem,
		"Number of registry mutations made during dispatch and deferred to the next update",
		[]string{"op"},
	)
	delegatePanics = metrics.NewCounter(
		"delegate_panics_total",
		subsystem,
		"Number of recovered delegate panics",
		[]string{"range_type"},
	)
	membersGauge = metrics.NewGauge(
		"members",
		subsystem,
		"Number of nodes inside each range type after the last update",
		[]string{"range_type"},
	)
)

// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PortLine is the line of digital and timer ports (0 low, 1 high)
	PortLine = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hatd_port_line",
			Help: "Current line of a digital port (0 = low, 1 = high)",
		},
		[]string{"port"},
	)

	// TimerEnabled indicates if a timer is enabled
	TimerEnabled = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hatd_timer_enabled",
			Help: "Timer enabled (1) or disabled (0)",
		},
		[]string{"timer"},
	)

	// TimerOccurrences counts schedule activations
	TimerOccurrences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatd_timer_occurrences_total",
			Help: "Total schedule activations by timer and schedule",
		},
		[]string{"timer", "schedule"},
	)

	// TimerQueueLength is the number of pending notifications
	TimerQueueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hatd_timer_queue_length",
			Help: "Pending activations and deactivations of a timer",
		},
		[]string{"timer"},
	)

	// TimerDropped counts notifications that were not queued
	TimerDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatd_timer_dropped_total",
			Help: "Notifications dropped by timer and reason",
		},
		[]string{"timer", "reason"},
	)

	// TimerResolutionFailures counts schedules whose next occurrence could not be computed
	TimerResolutionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatd_timer_resolution_failures_total",
			Help: "Failed next occurrence computations by timer and schedule",
		},
		[]string{"timer", "schedule"},
	)

	// PollCycles counts poll loop iterations
	PollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hatd_poll_cycles_total",
			Help: "Total poll loop iterations",
		},
	)

	// CommandsTotal counts API commands by type
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatd_commands_total",
			Help: "Total API commands by type",
		},
		[]string{"command"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatd_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)
)

// SetPortLine updates the line metric of a port
func SetPortLine(port string, high bool) {
	PortLine.WithLabelValues(port).Set(boolToFloat(high))
}

// SetTimerEnabled updates the enabled metric of a timer
func SetTimerEnabled(timer string, enabled bool) {
	TimerEnabled.WithLabelValues(timer).Set(boolToFloat(enabled))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

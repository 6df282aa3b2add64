// Package metrics exposes Prometheus collectors for reminder activity.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meeting_reminder"

// Refresh results.
const (
	RefreshOK           = "ok"
	RefreshPartial      = "partial"
	RefreshAccessDenied = "access_denied"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	remindersTriggered *prometheus.CounterVec
	reminderActions    *prometheus.CounterVec
	calendarRefreshes  *prometheus.CounterVec
	visibleEvents      prometheus.Gauge
	activeReminder     prometheus.Gauge
}

// MustNewMetrics constructs the collectors and registers them with reg.
// Registering the same collectors twice reuses the existing ones; any other
// registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		remindersTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "reminders_triggered_total",
				Help:      "Reminders raised, by trigger condition.",
			},
			[]string{"trigger"},
		),
		reminderActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "reminder_actions_total",
				Help:      "User actions on the active reminder.",
			},
			[]string{"action"},
		),
		calendarRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "calendar",
				Name:      "refreshes_total",
				Help:      "Calendar refreshes, by result.",
			},
			[]string{"result"},
		),
		visibleEvents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "calendar",
				Name:      "visible_events",
				Help:      "Meetings visible after filtering in the last refresh.",
			},
		),
		activeReminder: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "active_reminder",
				Help:      "1 while a reminder is being shown.",
			},
		),
	}

	m.remindersTriggered = register(reg, m.remindersTriggered)
	m.reminderActions = register(reg, m.reminderActions)
	m.calendarRefreshes = register(reg, m.calendarRefreshes)
	m.visibleEvents = register(reg, m.visibleEvents)
	m.activeReminder = register(reg, m.activeReminder)

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// RecordTrigger counts a reminder raised for the given trigger condition.
func (m *Metrics) RecordTrigger(trigger string) {
	if m == nil {
		return
	}
	m.remindersTriggered.WithLabelValues(trigger).Inc()
	m.activeReminder.Set(1)
}

// RecordAction counts a user action that closed the active reminder.
func (m *Metrics) RecordAction(action string) {
	if m == nil {
		return
	}
	m.reminderActions.WithLabelValues(action).Inc()
	m.activeReminder.Set(0)
}

// RecordRefresh counts a calendar refresh and the resulting visible meetings.
func (m *Metrics) RecordRefresh(result string, visible int) {
	if m == nil {
		return
	}
	m.calendarRefreshes.WithLabelValues(result).Inc()
	m.visibleEvents.Set(float64(visible))
}

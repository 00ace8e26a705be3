package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder loop.
type Metrics struct {
	// RemindersShownTotal counts popups shown, by trigger (schedule/manual/startup).
	RemindersShownTotal *prometheus.CounterVec

	// RemindersFocusedTotal counts re-focus requests for an already open popup.
	RemindersFocusedTotal *prometheus.CounterVec

	// RemindersSkippedTotal counts fire times skipped outside active hours.
	RemindersSkippedTotal prometheus.Counter

	// QuickCloseTotal counts quick-close outcomes (blocked/confirmed).
	QuickCloseTotal *prometheus.CounterVec

	// PopupOpen is 1 while a reminder popup is open.
	PopupOpen prometheus.Gauge

	// NextFireTimestamp is the unix time of the next scheduled reminder.
	NextFireTimestamp prometheus.Gauge

	// SettingsUpdatesTotal counts applied settings updates.
	SettingsUpdatesTotal prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics for the reminder loop.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RemindersShownTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_shown_total",
				Help:      "Total number of reminder popups shown",
			},
			[]string{"trigger"},
		),

		RemindersFocusedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_focused_total",
				Help:      "Total number of re-focus requests for an open popup",
			},
			[]string{"trigger"},
		),

		RemindersSkippedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_skipped_total",
				Help:      "Total number of reminders skipped outside active hours",
			},
		),

		QuickCloseTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quick_close_total",
				Help:      "Total number of quick-close outcomes",
			},
			[]string{"outcome"},
		),

		PopupOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "popup_open",
				Help:      "Whether a reminder popup is currently open",
			},
		),

		NextFireTimestamp: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "next_fire_timestamp_seconds",
				Help:      "Unix time of the next scheduled reminder",
			},
		),

		SettingsUpdatesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settings_updates_total",
				Help:      "Total number of applied settings updates",
			},
		),
	}
}

func (m *Metrics) incShown(trigger string) {
	if m == nil {
		return
	}
	m.RemindersShownTotal.WithLabelValues(trigger).Inc()
}

func (m *Metrics) incFocused(trigger string) {
	if m == nil {
		return
	}
	m.RemindersFocusedTotal.WithLabelValues(trigger).Inc()
}

func (m *Metrics) incSkipped() {
	if m == nil {
		return
	}
	m.RemindersSkippedTotal.Inc()
}

func (m *Metrics) incQuickClose(outcome string) {
	if m == nil {
		return
	}
	m.QuickCloseTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setPopupOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.PopupOpen.Set(1)
	} else {
		m.PopupOpen.Set(0)
	}
}

func (m *Metrics) setNextFire(unix float64) {
	if m == nil {
		return
	}
	m.NextFireTimestamp.Set(unix)
}

func (m *Metrics) incSettingsUpdates() {
	if m == nil {
		return
	}
	m.SettingsUpdatesTotal.Inc()
}

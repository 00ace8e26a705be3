// Package reminder runs the trigger loop: a periodic timer that decides,
// against the active-hours schedule, when to ask the presentation layer for
// a popup. At most one popup is outstanding at any time.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pereryv/internal/events"
	"pereryv/internal/schedule"
	"pereryv/internal/settings"
)

// Trigger values recorded with shown/focused events and metrics.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerStartup  = "startup"
)

// ErrNoPopup is returned when a close request arrives with no popup open.
var ErrNoPopup = errors.New("no reminder popup is open")

// QuickCloseError is returned when a popup is closed within the quick-close
// window without confirmation. The caller should surface ConfirmText and
// retry with confirmation.
type QuickCloseError struct {
	ConfirmText string
	Elapsed     time.Duration
}

func (e *QuickCloseError) Error() string {
	return fmt.Sprintf("popup closed after %s, confirmation required", e.Elapsed.Round(time.Millisecond))
}

// SettingsStore persists applied settings.
type SettingsStore interface {
	Save(s settings.Settings) error
}

// Config holds configuration for the trigger loop.
type Config struct {
	// CheckInterval is how often the loop checks whether it is time to fire.
	CheckInterval time.Duration
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{CheckInterval: time.Second}
}

// Status is a snapshot of the loop state.
type Status struct {
	Running      bool              `json:"running"`
	PopupOpen    bool              `json:"popup_open"`
	PopupShownAt time.Time         `json:"popup_shown_at,omitzero"`
	NextFireAt   time.Time         `json:"next_fire_at"`
	LastFireAt   time.Time         `json:"last_fire_at,omitzero"`
	Settings     settings.Settings `json:"settings"`
}

// Service is the reminder trigger loop.
type Service struct {
	config    Config
	presenter Presenter
	store     SettingsStore
	state     LastFireStore
	bus       *events.Bus
	metrics   *Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	settings     settings.Settings
	nextFireAt   time.Time
	lastFireAt   time.Time
	popupShownAt time.Time
	running      bool
	stopCh       chan struct{}
}

// New creates the trigger loop. Initial settings must be validated. Store,
// state, bus and metrics may be nil.
func New(
	config Config,
	initial settings.Settings,
	presenter Presenter,
	store SettingsStore,
	state LastFireStore,
	bus *events.Bus,
	metrics *Metrics,
	logger zerolog.Logger,
) *Service {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Service{
		config:    config,
		presenter: presenter,
		store:     store,
		state:     state,
		bus:       bus,
		metrics:   metrics,
		logger:    logger.With().Str("component", "reminder").Logger(),
		now:       time.Now,
		settings:  initial,
		stopCh:    make(chan struct{}),
	}
}

// Run starts the loop and blocks until the context is cancelled or Stop is
// called.
func (s *Service) Run(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	now := s.now()
	s.restoreSchedule(ctx, now)

	s.mu.Lock()
	cfg := s.settings
	next := s.nextFireAt
	s.mu.Unlock()

	s.logger.Info().
		Float64("interval_minutes", cfg.IntervalMinutes).
		Str("active_hours", cfg.HoursSummary()).
		Time("next_fire_at", next).
		Msg("reminder loop started")

	if cfg.ShowOnStart {
		if cfg.Hours.ContainsTime(now) {
			s.ShowNow(ctx, TriggerStartup)
		} else {
			s.logger.Info().Msg("startup reminder skipped, outside active hours")
			s.publish(events.KindReminderSkipped, "startup outside active hours")
		}
	}

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reminder loop stopped by context")
			s.setRunning(false)
			return
		case <-s.stopCh:
			s.logger.Info().Msg("reminder loop stopped")
			s.setRunning(false)
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop stops the loop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
}

// restoreSchedule computes the first fire time, seeding from the persisted
// last fire when one is fresh enough so a restart does not reset the
// interval.
func (s *Service) restoreSchedule(ctx context.Context, now time.Time) {
	s.mu.Lock()
	cfg := s.settings
	s.mu.Unlock()

	base := now
	if s.state != nil {
		if last, ok := s.state.LastFire(ctx); ok && last.Before(now) {
			base = last
			s.mu.Lock()
			s.lastFireAt = last
			s.mu.Unlock()
			s.logger.Info().Time("last_fire_at", last).Msg("restored last fire time")
		}
	}

	next := schedule.NextFireAfter(base, cfg.Interval(), cfg.Hours)
	if next.Before(now) {
		// Overdue while the daemon was down: fire as soon as allowed.
		next = schedule.NextFireAfter(now, 0, cfg.Hours)
	}

	s.mu.Lock()
	s.nextFireAt = next
	s.mu.Unlock()
	s.metrics.setNextFire(float64(next.Unix()))
}

// tick fires the reminder when the scheduled time has arrived.
func (s *Service) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	due := !now.Before(s.nextFireAt)
	popupOpen := !s.popupShownAt.IsZero()
	cfg := s.settings
	s.mu.Unlock()

	if !due {
		return
	}

	switch {
	case !cfg.Hours.ContainsTime(now):
		// The schedule normally lands inside a window; this covers clock
		// jumps and suspend/resume gaps.
		s.logger.Info().Str("active_hours", cfg.HoursSummary()).Msg("reminder skipped, outside active hours")
		s.publish(events.KindReminderSkipped, "outside active hours")
		s.metrics.incSkipped()
	case popupOpen:
		s.focus(ctx, TriggerSchedule)
	default:
		s.show(ctx, now, cfg, TriggerSchedule)
	}

	s.reschedule(now, cfg)
}

// ShowNow shows the popup immediately, or focuses it when already open.
// Explicit user action is honored regardless of active hours and does not
// move the schedule.
func (s *Service) ShowNow(ctx context.Context, trigger string) {
	now := s.now()

	s.mu.Lock()
	popupOpen := !s.popupShownAt.IsZero()
	cfg := s.settings
	s.mu.Unlock()

	if popupOpen {
		s.focus(ctx, trigger)
		return
	}
	s.show(ctx, now, cfg, trigger)
}

func (s *Service) show(ctx context.Context, now time.Time, cfg settings.Settings, trigger string) {
	popup := Popup{
		Title:   cfg.Title,
		Message: cfg.Message,
		Width:   cfg.WindowWidth,
		Height:  cfg.WindowHeight,
	}
	if err := s.presenter.Show(ctx, popup); err != nil {
		s.logger.Error().Err(err).Msg("presenter failed to show popup")
	}

	s.mu.Lock()
	s.popupShownAt = now
	s.lastFireAt = now
	s.mu.Unlock()

	if s.state != nil {
		if err := s.state.SetLastFire(ctx, now); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist last fire time")
		}
	}

	s.publish(events.KindReminderShown, trigger)
	s.metrics.incShown(trigger)
	s.metrics.setPopupOpen(true)
	s.logger.Info().Str("trigger", trigger).Msg("reminder shown")
}

func (s *Service) focus(ctx context.Context, trigger string) {
	if err := s.presenter.Focus(ctx); err != nil {
		s.logger.Error().Err(err).Msg("presenter failed to focus popup")
	}
	s.publish(events.KindReminderFocused, trigger)
	s.metrics.incFocused(trigger)
	s.logger.Info().Str("trigger", trigger).Msg("reminder popup already open, focused")
}

func (s *Service) reschedule(now time.Time, cfg settings.Settings) {
	next := schedule.NextFireAfter(now, cfg.Interval(), cfg.Hours)

	s.mu.Lock()
	s.nextFireAt = next
	s.mu.Unlock()

	s.metrics.setNextFire(float64(next.Unix()))
	s.logger.Info().Time("next_fire_at", next).Msg("next reminder scheduled")
}

// ClosePopup handles a close request for the open popup. A close within the
// quick-close window requires confirmation: the first attempt returns a
// QuickCloseError carrying the confirmation text and keeps the popup open.
func (s *Service) ClosePopup(ctx context.Context, confirmed bool) error {
	now := s.now()

	s.mu.Lock()
	shownAt := s.popupShownAt
	cfg := s.settings
	s.mu.Unlock()

	if shownAt.IsZero() {
		return ErrNoPopup
	}

	elapsed := now.Sub(shownAt)
	quick := elapsed < cfg.QuickCloseWindow()

	if quick && !confirmed {
		s.publish(events.KindQuickCloseBlocked, elapsed.String())
		s.metrics.incQuickClose("blocked")
		s.logger.Info().Dur("elapsed", elapsed).Msg("quick close blocked, confirmation required")
		if err := s.presenter.Focus(ctx); err != nil {
			s.logger.Error().Err(err).Msg("presenter failed to focus popup")
		}
		return &QuickCloseError{ConfirmText: cfg.QuickCloseConfirmText, Elapsed: elapsed}
	}

	if quick {
		s.publish(events.KindQuickCloseConfirmed, elapsed.String())
		s.metrics.incQuickClose("confirmed")
	}

	s.mu.Lock()
	s.popupShownAt = time.Time{}
	s.mu.Unlock()

	s.publish(events.KindReminderClosed, elapsed.String())
	s.metrics.setPopupOpen(false)
	s.logger.Info().Dur("open_for", elapsed).Msg("reminder popup closed")
	return nil
}

// UpdateSettings validates, applies, persists and reschedules.
func (s *Service) UpdateSettings(ctx context.Context, next settings.Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	now := s.now()

	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(next); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist settings")
			return err
		}
	}

	s.reschedule(now, next)
	s.publish(events.KindSettingsUpdated, next.HoursSummary())
	s.metrics.incSettingsUpdates()
	s.logger.Info().
		Float64("interval_minutes", next.IntervalMinutes).
		Str("active_hours", next.HoursSummary()).
		Msg("settings updated")
	return nil
}

// Settings returns the current settings.
func (s *Service) Settings() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Status returns a snapshot of the loop state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:      s.running,
		PopupOpen:    !s.popupShownAt.IsZero(),
		PopupShownAt: s.popupShownAt,
		NextFireAt:   s.nextFireAt,
		LastFireAt:   s.lastFireAt,
		Settings:     s.settings,
	}
}

// IsRunning returns whether the loop is currently running.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Service) publish(kind events.Kind, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.New(kind, detail))
}

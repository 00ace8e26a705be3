// Package settings holds the user-tunable reminder configuration and its
// JSON persistence. The file is read once at startup and rewritten wholesale
// on every save; there are no concurrent writers.
package settings

import (
	"fmt"
	"strings"
	"time"

	"pereryv/internal/schedule"
)

// Default values applied when neither the settings file nor the command line
// provides one.
const (
	DefaultIntervalMinutes      = 25.0
	DefaultMessage              = "Time to take a break"
	DefaultQuickCloseConfirm    = "Close so soon? Give your eyes a rest first."
	DefaultActiveHours          = "9-12/13-18"
	DefaultTitle                = "Reminder"
	DefaultWindowWidth          = 320
	DefaultWindowHeight         = 140
	DefaultQuickCloseWindowSecs = 2.0
	DefaultFileName             = "desktop_reminder_settings.json"
)

// Settings is the reminder configuration. ActiveHours always holds the
// normalized text form of Hours.
type Settings struct {
	IntervalMinutes       float64 `json:"interval_minutes"`
	Message               string  `json:"message"`
	QuickCloseConfirmText string  `json:"quick_close_confirm_text"`
	ActiveHours           string  `json:"active_hours"`
	Title                 string  `json:"title"`
	WindowWidth           int     `json:"window_width"`
	WindowHeight          int     `json:"window_height"`
	ShowOnStart           bool    `json:"show_on_start"`
	QuickCloseWindowSecs  float64 `json:"quick_close_window_seconds"`

	// Presenter hints carried for compatibility with the desktop front end;
	// the daemon itself does not interpret them.
	TrayIconPath      string `json:"tray_icon"`
	HideControlWindow bool   `json:"hide_control_window"`

	// Hours is the parsed form of ActiveHours, populated by Validate.
	Hours schedule.ActiveHours `json:"-"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	s := Settings{
		IntervalMinutes:       DefaultIntervalMinutes,
		Message:               DefaultMessage,
		QuickCloseConfirmText: DefaultQuickCloseConfirm,
		ActiveHours:           DefaultActiveHours,
		Title:                 DefaultTitle,
		WindowWidth:           DefaultWindowWidth,
		WindowHeight:          DefaultWindowHeight,
		QuickCloseWindowSecs:  DefaultQuickCloseWindowSecs,
	}
	s.Hours = schedule.MustParseHours(DefaultActiveHours)
	return s
}

// Validate checks field values, normalizes text fields and fills Hours.
func (s *Settings) Validate() error {
	if s.IntervalMinutes <= 0 {
		return fmt.Errorf("interval must be > 0 minutes, got %g", s.IntervalMinutes)
	}

	s.Message = strings.TrimSpace(s.Message)
	if s.Message == "" {
		return fmt.Errorf("reminder message must not be empty")
	}

	s.QuickCloseConfirmText = strings.TrimSpace(s.QuickCloseConfirmText)
	if s.QuickCloseConfirmText == "" {
		return fmt.Errorf("quick-close confirm text must not be empty")
	}

	if s.WindowWidth <= 0 || s.WindowHeight <= 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", s.WindowWidth, s.WindowHeight)
	}

	if s.QuickCloseWindowSecs < 0 {
		return fmt.Errorf("quick-close window must be >= 0 seconds, got %g", s.QuickCloseWindowSecs)
	}

	hours, err := schedule.ParseHours(s.ActiveHours)
	if err != nil {
		return err
	}
	s.Hours = hours
	s.ActiveHours = hours.String()
	return nil
}

// Interval returns the reminder interval as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes * float64(time.Minute))
}

// QuickCloseWindow returns the quick-close confirmation window as a duration.
func (s Settings) QuickCloseWindow() time.Duration {
	return time.Duration(s.QuickCloseWindowSecs * float64(time.Second))
}

// HoursSummary returns the active-hours text, or "all day" for the empty set.
func (s Settings) HoursSummary() string {
	if s.ActiveHours == "" {
		return "all day"
	}
	return s.ActiveHours
}

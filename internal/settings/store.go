package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"pereryv/internal/schedule"
)

// Store persists settings as a JSON file. Saves merge over keys already
// present in the file so that fields written by other front ends survive.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a store for the given file path.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// Path returns the settings file location.
func (st *Store) Path() string {
	return st.path
}

// Load reads saved settings over the given base. A missing file returns the
// base unchanged; corrupt JSON or invalid field values are logged and the
// affected fields keep their base values.
func (st *Store) Load(base Settings) Settings {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if !os.IsNotExist(err) {
			st.logger.Warn().Err(err).Str("path", st.path).Msg("settings file unreadable, using defaults")
		}
		return base
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		st.logger.Warn().Err(err).Str("path", st.path).Msg("settings file corrupt, using defaults")
		return base
	}

	out := base

	if v, ok := decodeFloat(raw, "interval_minutes"); ok {
		if v > 0 {
			out.IntervalMinutes = v
		} else {
			st.logger.Warn().Float64("interval_minutes", v).Msg("ignoring saved interval, must be > 0")
		}
	}

	if v, ok := decodeString(raw, "message"); ok && strings.TrimSpace(v) != "" {
		out.Message = strings.TrimSpace(v)
	}
	if v, ok := decodeString(raw, "quick_close_confirm_text"); ok && strings.TrimSpace(v) != "" {
		out.QuickCloseConfirmText = strings.TrimSpace(v)
	}
	if v, ok := decodeString(raw, "title"); ok && strings.TrimSpace(v) != "" {
		out.Title = strings.TrimSpace(v)
	}

	// Legacy key from an earlier internal naming.
	hoursText, ok := decodeString(raw, "active_hours")
	if !ok {
		hoursText, ok = decodeString(raw, "active_hours_text")
	}
	if ok {
		if hours, err := schedule.ParseHours(hoursText); err != nil {
			st.logger.Warn().Err(err).Msg("ignoring saved active hours")
		} else {
			out.ActiveHours = hours.String()
		}
	}

	if v, ok := decodeFloat(raw, "window_width"); ok && v >= 1 {
		out.WindowWidth = int(v)
	}
	if v, ok := decodeFloat(raw, "window_height"); ok && v >= 1 {
		out.WindowHeight = int(v)
	}
	if v, ok := decodeFloat(raw, "quick_close_window_seconds"); ok && v >= 0 {
		out.QuickCloseWindowSecs = v
	}
	if v, ok := decodeBool(raw, "show_on_start"); ok {
		out.ShowOnStart = v
	}
	if v, ok := decodeBool(raw, "hide_control_window"); ok {
		out.HideControlWindow = v
	}
	if v, ok := decodeString(raw, "tray_icon"); ok {
		out.TrayIconPath = v
	}

	return out
}

// Save writes the settings to disk, preserving unknown keys that other
// writers may have left in the file.
func (st *Store) Save(s Settings) error {
	merged := map[string]json.RawMessage{}
	if data, err := os.ReadFile(st.path); err == nil {
		// Corrupt existing content is discarded rather than propagated.
		_ = json.Unmarshal(data, &merged)
	}

	fields, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var own map[string]json.RawMessage
	if err := json.Unmarshal(fields, &own); err != nil {
		return err
	}
	for k, v := range own {
		merged[k] = v
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(st.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(st.path, append(data, '\n'), 0o644); err != nil {
		return err
	}

	st.logger.Info().Str("path", st.path).Msg("settings persisted")
	return nil
}

func decodeFloat(raw map[string]json.RawMessage, key string) (float64, bool) {
	msg, ok := raw[key]
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(msg, &v); err != nil {
		return 0, false
	}
	return v, true
}

func decodeString(raw map[string]json.RawMessage, key string) (string, bool) {
	msg, ok := raw[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(msg, &v); err != nil {
		return "", false
	}
	return v, true
}

func decodeBool(raw map[string]json.RawMessage, key string) (bool, bool) {
	msg, ok := raw[key]
	if !ok {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(msg, &v); err != nil {
		return false, false
	}
	return v, true
}

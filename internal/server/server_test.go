package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pereryv/internal/events"
	"pereryv/internal/reminder"
	"pereryv/internal/settings"
)

type mockControl struct {
	status       reminder.Status
	settings     settings.Settings
	showCalls    []string
	closeCalls   []bool
	closeErr     error
	updated      []settings.Settings
	updateErr    error
}

func (m *mockControl) Status() reminder.Status        { return m.status }
func (m *mockControl) Settings() settings.Settings    { return m.settings }
func (m *mockControl) ShowNow(_ context.Context, trigger string) {
	m.showCalls = append(m.showCalls, trigger)
}
func (m *mockControl) ClosePopup(_ context.Context, confirmed bool) error {
	m.closeCalls = append(m.closeCalls, confirmed)
	return m.closeErr
}
func (m *mockControl) UpdateSettings(_ context.Context, next settings.Settings) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = append(m.updated, next)
	m.settings = next
	return nil
}

type mockHistory struct {
	events []events.Event
	err    error
	limit  int
}

func (m *mockHistory) Recent(_ context.Context, limit int) ([]events.Event, error) {
	m.limit = limit
	return m.events, m.err
}

type mockExporter struct {
	path string
	err  error
}

func (m *mockExporter) Export(_ context.Context) (string, error) { return m.path, m.err }

func defaultControl() *mockControl {
	cfg := settings.Defaults()
	_ = cfg.Validate()
	return &mockControl{
		status:   reminder.Status{Running: true, NextFireAt: time.Now().Add(10 * time.Minute), Settings: cfg},
		settings: cfg,
	}
}

func newTestServer(control *mockControl, history HistoryReader, exporter Exporter, token string) *HTTPServer {
	return NewHTTPServer("127.0.0.1:0", token, control, history, exporter, zerolog.Nop())
}

func doRequest(t *testing.T, srv *HTTPServer, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleStatus(t *testing.T) {
	control := defaultControl()
	srv := newTestServer(control, nil, nil, "")

	w := doRequest(t, srv, http.MethodGet, "/api/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got reminder.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Running)
	assert.Equal(t, control.settings.Message, got.Settings.Message)

	w = doRequest(t, srv, http.MethodPost, "/api/v1/status", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(defaultControl(), nil, nil, "secret")

	w := doRequest(t, srv, http.MethodGet, "/api/v1/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/api/v1/status", nil, map[string]string{"X-Api-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/api/v1/status", nil, map[string]string{"X-Api-Key": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleRemind(t *testing.T) {
	control := defaultControl()
	srv := newTestServer(control, nil, nil, "")

	w := doRequest(t, srv, http.MethodPost, "/api/v1/remind", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"api"}, control.showCalls)

	w = doRequest(t, srv, http.MethodGet, "/api/v1/remind", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandlePopupClose(t *testing.T) {
	t.Run("closed", func(t *testing.T) {
		control := defaultControl()
		srv := newTestServer(control, nil, nil, "")

		w := doRequest(t, srv, http.MethodPost, "/api/v1/popup/close", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp ClosePopupResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Closed)
		assert.Equal(t, []bool{false}, control.closeCalls)
	})

	t.Run("confirm flag forwarded", func(t *testing.T) {
		control := defaultControl()
		srv := newTestServer(control, nil, nil, "")

		w := doRequest(t, srv, http.MethodPost, "/api/v1/popup/close", ClosePopupRequest{Confirm: true}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []bool{true}, control.closeCalls)
	})

	t.Run("quick close blocked", func(t *testing.T) {
		control := defaultControl()
		control.closeErr = &reminder.QuickCloseError{ConfirmText: "Take a break first", Elapsed: 500 * time.Millisecond}
		srv := newTestServer(control, nil, nil, "")

		w := doRequest(t, srv, http.MethodPost, "/api/v1/popup/close", nil, nil)
		require.Equal(t, http.StatusConflict, w.Code)

		var resp ClosePopupResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.ConfirmRequired)
		assert.Equal(t, "Take a break first", resp.ConfirmText)
	})

	t.Run("no popup", func(t *testing.T) {
		control := defaultControl()
		control.closeErr = reminder.ErrNoPopup
		srv := newTestServer(control, nil, nil, "")

		w := doRequest(t, srv, http.MethodPost, "/api/v1/popup/close", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		srv := newTestServer(defaultControl(), nil, nil, "")

		w := doRequest(t, srv, http.MethodPost, "/api/v1/popup/close", "not json", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleSettings(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		control := defaultControl()
		srv := newTestServer(control, nil, nil, "")

		w := doRequest(t, srv, http.MethodGet, "/api/v1/settings", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got settings.Settings
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, control.settings.IntervalMinutes, got.IntervalMinutes)
	})

	t.Run("put merges over current settings", func(t *testing.T) {
		control := defaultControl()
		srv := newTestServer(control, nil, nil, "")

		w := doRequest(t, srv, http.MethodPut, "/api/v1/settings", map[string]interface{}{"interval_minutes": 45}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, control.updated, 1)
		assert.Equal(t, 45.0, control.updated[0].IntervalMinutes)
		// Untouched fields keep their values.
		assert.Equal(t, settings.Defaults().Message, control.updated[0].Message)
	})

	t.Run("put rejects invalid values", func(t *testing.T) {
		control := defaultControl()
		control.updateErr = errors.New("interval_minutes must be positive")
		srv := newTestServer(control, nil, nil, "")

		w := doRequest(t, srv, http.MethodPut, "/api/v1/settings", map[string]interface{}{"interval_minutes": -1}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("put rejects unknown fields", func(t *testing.T) {
		srv := newTestServer(defaultControl(), nil, nil, "")

		w := doRequest(t, srv, http.MethodPut, "/api/v1/settings", map[string]interface{}{"nope": true}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleHistory(t *testing.T) {
	t.Run("lists events", func(t *testing.T) {
		history := &mockHistory{events: []events.Event{
			{ID: "a", Kind: events.KindReminderShown, At: time.Now(), Detail: "timer"},
			{ID: "b", Kind: events.KindReminderClosed, At: time.Now()},
		}}
		srv := newTestServer(defaultControl(), history, nil, "")

		w := doRequest(t, srv, http.MethodGet, "/api/v1/history?limit=10", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 10, history.limit)

		var resp struct {
			Events []EventResponse `json:"events"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Events, 2)
		assert.Equal(t, "reminder_shown", resp.Events[0].Kind)
	})

	t.Run("default limit", func(t *testing.T) {
		history := &mockHistory{}
		srv := newTestServer(defaultControl(), history, nil, "")

		w := doRequest(t, srv, http.MethodGet, "/api/v1/history", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 50, history.limit)
	})

	t.Run("invalid limit", func(t *testing.T) {
		srv := newTestServer(defaultControl(), &mockHistory{}, nil, "")

		for _, limit := range []string{"0", "-5", "1001", "abc"} {
			w := doRequest(t, srv, http.MethodGet, "/api/v1/history?limit="+limit, nil, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(defaultControl(), nil, nil, "")

		w := doRequest(t, srv, http.MethodGet, "/api/v1/history", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandleExport(t *testing.T) {
	t.Run("returns workbook path", func(t *testing.T) {
		srv := newTestServer(defaultControl(), nil, &mockExporter{path: "exports/reminders_20260828.xlsx"}, "")

		w := doRequest(t, srv, http.MethodPost, "/api/v1/export", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp ExportResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "exports/reminders_20260828.xlsx", resp.Path)
	})

	t.Run("export failure", func(t *testing.T) {
		srv := newTestServer(defaultControl(), nil, &mockExporter{err: errors.New("disk full")}, "")

		w := doRequest(t, srv, http.MethodPost, "/api/v1/export", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(defaultControl(), nil, nil, "")

		w := doRequest(t, srv, http.MethodPost, "/api/v1/export", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

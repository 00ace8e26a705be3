package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pereryv/internal/reminder"
)

// ClosePopupRequest is the request body for closing the popup.
type ClosePopupRequest struct {
	Confirm bool `json:"confirm"`
}

// ClosePopupResponse is the response for a blocked or completed close.
type ClosePopupResponse struct {
	Closed          bool   `json:"closed"`
	ConfirmRequired bool   `json:"confirm_required,omitempty"`
	ConfirmText     string `json:"confirm_text,omitempty"`
	Error           string `json:"error,omitempty"`
}

// EventResponse represents a recorded event in API responses.
type EventResponse struct {
	ID     string    `json:"id"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// ExportResponse reports the written workbook path.
type ExportResponse struct {
	Path string `json:"path"`
}

// handleStatus returns the current loop state.
// GET /api/v1/status
func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.control.Status())
}

// handleRemind shows the reminder immediately, or focuses the open popup.
// POST /api/v1/remind
func (s *HTTPServer) handleRemind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.control.ShowNow(r.Context(), "api")
	writeJSON(w, http.StatusOK, s.control.Status())
}

// handlePopupClose closes the open popup. Inside the quick-close window the
// close is refused with 409 and the confirm text until confirm is set.
// POST /api/v1/popup/close
func (s *HTTPServer) handlePopupClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ClosePopupRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	err := s.control.ClosePopup(r.Context(), req.Confirm)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ClosePopupResponse{Closed: true})
	case errors.Is(err, reminder.ErrNoPopup):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		var quick *reminder.QuickCloseError
		if errors.As(err, &quick) {
			writeJSON(w, http.StatusConflict, ClosePopupResponse{
				ConfirmRequired: true,
				ConfirmText:     quick.ConfirmText,
				Error:           quick.Error(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleSettings reads or replaces the reminder settings.
// GET /api/v1/settings, PUT /api/v1/settings
func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.control.Settings())
	case http.MethodPut:
		// Decode over the current settings so omitted fields keep their values.
		next := s.control.Settings()
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&next); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.control.UpdateSettings(r.Context(), next); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.control.Settings())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleHistory lists recent reminder events, newest first.
// GET /api/v1/history?limit=N
func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not enabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}

	recorded, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	list := make([]EventResponse, 0, len(recorded))
	for _, e := range recorded {
		list = append(list, EventResponse{
			ID:     e.ID,
			Kind:   string(e.Kind),
			At:     e.At,
			Detail: e.Detail,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": list})
}

// handleExport writes the history workbook and returns its path.
// POST /api/v1/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not enabled")
		return
	}

	path, err := s.exporter.Export(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{Path: path})
}

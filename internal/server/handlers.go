package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rewired-gh/strikewatch/internal/models"
)

const (
	defaultSignalLimit = 50
	maxSignalLimit     = 500
)

type healthResponse struct {
	Status    string    `json:"status"`
	CycleID   string    `json:"cycle_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type sortRequest struct {
	Field string `json:"field"`
}

type filterRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	v := s.controller.View()
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", CycleID: v.CycleID, UpdatedAt: v.UpdatedAt})
}

// handleGetView returns the controller view. The sort, order and filter query
// parameters apply to this response only.
func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	v := s.controller.View()
	q := r.URL.Query()

	if field := q.Get("sort"); field != "" {
		if !models.Field(field).Valid() {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sort field %q", field))
			return
		}
		ascending := true
		switch q.Get("order") {
		case "", "asc":
		case "desc":
			ascending = false
		default:
			s.writeError(w, http.StatusBadRequest, "order must be asc or desc")
			return
		}
		v = v.Resorted(models.Field(field), ascending)
	}
	if q.Has("filter") {
		v = v.Refiltered(q.Get("filter"))
	}

	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !models.Field(req.Field).Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sort field %q", req.Field))
		return
	}
	s.writeJSON(w, http.StatusOK, s.controller.SortBy(models.Field(req.Field)))
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.writeJSON(w, http.StatusOK, s.controller.Filter(req.Text))
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if s.signals == nil {
		s.writeError(w, http.StatusServiceUnavailable, "signal history is not available")
		return
	}

	limit := defaultSignalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSignalLimit)
	}

	records, err := s.signals.GetRecentSignals(limit)
	if err != nil {
		s.logger.Error("failed to load signals", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load signals")
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(payload, '\n')); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

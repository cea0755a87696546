package api

import (
	"net/http"
	"time"

	"github.com/dnajar2/calling-crm-s-and-l/internal/agent"
	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

type eventRequest struct {
	CalendarID  string `json:"calendar_id"`
	ClientID    string `json:"client_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request, u *store.User) {
	var req eventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, end, ok := parseEventTimes(w, req.StartTime, req.EndTime)
	if !ok {
		return
	}
	ev, err := s.Store.CreateEvent(u.ID, req.CalendarID, req.ClientID, req.Title, req.Description, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	cl, err := s.Store.GetClient(u.ID, ev.ClientID)
	if err != nil {
		writeError(w, err)
		return
	}
	bookingsCreated.Inc()
	writeJSON(w, http.StatusCreated, agent.BookingResult(ev, cl))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, u *store.User) {
	events, err := s.Store.ListEvents(u.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request, u *store.User) {
	ev, err := s.Store.GetEvent(u.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request, u *store.User) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		StartTime   *string `json:"start_time"`
		EndTime     *string `json:"end_time"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var start, end *time.Time
	if req.StartTime != nil {
		t, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start_time must be RFC 3339"})
			return
		}
		start = &t
	}
	if req.EndTime != nil {
		t, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end_time must be RFC 3339"})
			return
		}
		end = &t
	}

	ev, err := s.Store.UpdateEvent(u.ID, r.PathValue("id"), req.Title, req.Description, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request, u *store.User) {
	if err := s.Store.DeleteEvent(u.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseEventTimes(w http.ResponseWriter, rawStart, rawEnd string) (time.Time, time.Time, bool) {
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start_time must be RFC 3339"})
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(time.RFC3339, rawEnd)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end_time must be RFC 3339"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

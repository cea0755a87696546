package api

import (
	"net/http"

	"github.com/dnajar2/calling-crm-s-and-l/internal/agent"
)

// The public surface never authenticates: possession of a calendar's booking
// token is the whole authorization. Responses leak nothing about the owner
// beyond the calendar itself.

func (s *Server) handlePublicAvailability(w http.ResponseWriter, r *http.Request) {
	day, ok := parseDate(r, "date")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}
	cal, slots, err := s.Slots.ForToken(r.PathValue("token"), day)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := availabilityResponse(day, slots)
	resp["calendar"] = map[string]string{"name": cal.Name, "timezone": cal.Timezone}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePublicCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		Title       string `json:"title"`
		Description string `json:"description"`
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	start, end, ok := parseEventTimes(w, req.StartTime, req.EndTime)
	if !ok {
		return
	}
	ev, cl, err := s.Store.CreatePublicEvent(r.PathValue("token"),
		req.Name, req.Email, req.Phone, req.Title, req.Description, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	bookingsCreated.Inc()
	writeJSON(w, http.StatusCreated, agent.BookingResult(ev, cl))
}

func (s *Server) handlePublicDeleteLast(w http.ResponseWriter, r *http.Request) {
	ev, err := s.Store.DeleteLastPublicEvent(r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": ev.ID})
}

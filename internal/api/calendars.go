package api

import (
	"net/http"
	"time"

	"github.com/dnajar2/calling-crm-s-and-l/internal/availability"
	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

type calendarRequest struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

func (s *Server) handleListCalendars(w http.ResponseWriter, r *http.Request, u *store.User) {
	cals, err := s.Store.ListCalendars(u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calendars": cals})
}

func (s *Server) handleCreateCalendar(w http.ResponseWriter, r *http.Request, u *store.User) {
	var req calendarRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cal, err := s.Store.CreateCalendar(u.ID, req.Name, req.Timezone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cal)
}

func (s *Server) handleGetCalendar(w http.ResponseWriter, r *http.Request, u *store.User) {
	cal, err := s.Store.GetCalendar(u.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) handleUpdateCalendar(w http.ResponseWriter, r *http.Request, u *store.User) {
	var req calendarRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cal, err := s.Store.UpdateCalendar(u.ID, r.PathValue("id"), req.Name, req.Timezone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

func (s *Server) handleDeleteCalendar(w http.ResponseWriter, r *http.Request, u *store.User) {
	if err := s.Store.DeleteCalendar(u.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request, u *store.User) {
	day, ok := parseDate(r, "date")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}
	slots, err := s.Slots.ForDate(u.ID, r.PathValue("id"), day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse(day, slots))
}

// handleLookupCalendars resolves an owner email to their calendars. External
// automations that only know the owner address use this to find the public
// booking token.
func (s *Server) handleLookupCalendars(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}
	owner, cals, err := s.Store.LookupCalendarsByOwnerEmail(email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      map[string]string{"id": owner.ID, "name": owner.Name, "email": owner.Email},
		"calendars": cals,
	})
}

func availabilityResponse(day time.Time, slots []availability.Slot) map[string]any {
	starts := make([]string, 0, len(slots))
	for _, s := range slots {
		starts = append(starts, s.Start.Format(time.RFC3339))
	}
	return map[string]any{
		"date":  day.Format("2006-01-02"),
		"slots": starts,
	}
}

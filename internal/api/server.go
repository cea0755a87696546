// Package api is the HTTP surface: authenticated CRUD for calendars,
// clients, events and notes, the chat endpoint, and the unauthenticated
// public booking routes keyed by calendar token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dnajar2/calling-crm-s-and-l/internal/agent"
	"github.com/dnajar2/calling-crm-s-and-l/internal/availability"
	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

var (
	bookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_bookings_created_total",
		Help: "Events booked, via any surface.",
	})
	overlapRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_overlap_rejections_total",
		Help: "Bookings rejected because the slot was taken.",
	})
	chatFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_chat_fallbacks_total",
		Help: "Chat turns that degraded to the clarification fallback.",
	})
)

// Authenticator resolves a request to the acting user.
type Authenticator interface {
	Authenticate(r *http.Request) (*store.User, error)
}

// StaticTokenAuth authenticates every request bearing the configured token as
// the configured user. Single-operator deployments use this.
type StaticTokenAuth struct {
	Token  string
	UserID string
	Store  *store.Store
}

var errUnauthorized = errors.New("unauthorized")

func (a *StaticTokenAuth) Authenticate(r *http.Request) (*store.User, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token != a.Token || a.Token == "" {
		return nil, errUnauthorized
	}
	return a.Store.GetUser(a.UserID)
}

// Server wires the handlers over their collaborators.
type Server struct {
	Store     *store.Store
	Auth      Authenticator
	Slots     *availability.Generator
	Assistant *agent.Assistant
}

// NewServer builds a Server and registers the chat fallback metric hook.
func NewServer(st *store.Store, auth Authenticator, assistant *agent.Assistant) *Server {
	if assistant != nil {
		assistant.OnFallback = func() { chatFallbacks.Inc() }
	}
	return &Server{
		Store:     st,
		Auth:      auth,
		Slots:     &availability.Generator{Store: st},
		Assistant: assistant,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Authenticated surface.
	mux.HandleFunc("GET /calendars", s.authed(s.handleListCalendars))
	mux.HandleFunc("POST /calendars", s.authed(s.handleCreateCalendar))
	mux.HandleFunc("GET /calendars/lookup", s.handleLookupCalendars)
	mux.HandleFunc("GET /calendars/{id}", s.authed(s.handleGetCalendar))
	mux.HandleFunc("PATCH /calendars/{id}", s.authed(s.handleUpdateCalendar))
	mux.HandleFunc("DELETE /calendars/{id}", s.authed(s.handleDeleteCalendar))
	mux.HandleFunc("GET /calendars/{id}/events", s.authed(s.handleListEvents))
	mux.HandleFunc("GET /calendars/{id}/availability", s.authed(s.handleAvailability))

	mux.HandleFunc("GET /clients", s.authed(s.handleListClients))
	mux.HandleFunc("POST /clients", s.authed(s.handleCreateClient))
	mux.HandleFunc("GET /clients/{id}", s.authed(s.handleGetClient))
	mux.HandleFunc("PATCH /clients/{id}", s.authed(s.handleUpdateClient))
	mux.HandleFunc("DELETE /clients/{id}", s.authed(s.handleDeleteClient))

	mux.HandleFunc("POST /events", s.authed(s.handleCreateEvent))
	mux.HandleFunc("GET /events/{id}", s.authed(s.handleGetEvent))
	mux.HandleFunc("PATCH /events/{id}", s.authed(s.handleUpdateEvent))
	mux.HandleFunc("DELETE /events/{id}", s.authed(s.handleDeleteEvent))

	mux.HandleFunc("GET /notes", s.authed(s.handleListNotes))
	mux.HandleFunc("POST /notes", s.authed(s.handleCreateNote))
	mux.HandleFunc("GET /notes/search", s.authed(s.handleSearchNotes))
	mux.HandleFunc("GET /notes/{id}", s.authed(s.handleGetNote))
	mux.HandleFunc("DELETE /notes/{id}", s.authed(s.handleDeleteNote))

	mux.HandleFunc("POST /ai/chat", s.authed(s.handleChat))

	// Public booking surface: the token in the path is the authorization.
	mux.HandleFunc("GET /public/{token}/availability", s.handlePublicAvailability)
	mux.HandleFunc("POST /public/{token}/events", s.handlePublicCreateEvent)
	mux.HandleFunc("DELETE /public/{token}/events/last", s.handlePublicDeleteLast)

	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *store.User)

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.Auth.Authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		h(w, r, u)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Store.Stats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stats": stats})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] write response: %v", err)
	}
}

// writeError maps a store error to its HTTP status. Overlap rejections bump
// the metric here so both booking surfaces count.
func writeError(w http.ResponseWriter, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.Is(err, store.ErrOverlap):
		overlapRejections.Inc()
		writeJSON(w, http.StatusConflict, map[string]string{"error": "that time is no longer available"})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "contact already belongs to another client"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		log.Printf("[api] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

// parseDate reads a YYYY-MM-DD query parameter, defaulting to today.
func parseDate(r *http.Request, param string) (time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return time.Now(), true
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// requestContext bounds handler-side provider calls.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 30*time.Second)
}

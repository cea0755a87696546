package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request, u *store.User) {
	notes, err := s.Store.ListNotes(u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

// handleCreateNote embeds the content before storing. A dead embedding
// provider degrades to storing the note without a vector rather than failing
// the write.
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request, u *store.User) {
	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var vec []float64
	if s.Assistant != nil && s.Assistant.Dispatcher.Embedder != nil {
		ctx, cancel := requestContext(r)
		defer cancel()
		var err error
		vec, err = s.Assistant.Dispatcher.Embedder.Embed(ctx, req.Content)
		if err != nil {
			log.Printf("[api] note stored without embedding: %v", err)
			vec = nil
		}
	}

	n, err := s.Store.CreateNote(u.ID, req.Content, vec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request, u *store.User) {
	n, err := s.Store.GetNote(u.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request, u *store.User) {
	if err := s.Store.DeleteNote(u.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearchNotes(w http.ResponseWriter, r *http.Request, u *store.User) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 5
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	vec, err := s.Assistant.Dispatcher.Embedder.Embed(ctx, query)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "embedding unavailable"})
		return
	}
	matches, err := s.Store.SearchNotes(u.ID, vec, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": matches})
}

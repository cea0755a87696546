package api

import (
	"net/http"

	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

// handleChat runs the assistant pipeline for one message. The response body
// is always the two-key thought/actions object, even on total provider
// failure.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, u *store.User) {
	var req struct {
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	resp := s.Assistant.Chat(ctx, u.ID, req.Message)
	writeJSON(w, http.StatusOK, resp)
}

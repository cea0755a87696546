package api

import (
	"net/http"

	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

type clientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request, u *store.User) {
	clients, err := s.Store.ListClients(u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

// handleCreateClient resolves rather than blindly inserts: posting a contact
// that already exists returns the existing client.
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request, u *store.User) {
	var req clientRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cl, err := s.Store.Resolve(u.ID, req.Name, req.Email, req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cl)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request, u *store.User) {
	cl, err := s.Store.GetClient(u.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cl)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request, u *store.User) {
	var req clientRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cl, err := s.Store.UpdateClient(u.ID, r.PathValue("id"), req.Name, req.Email, req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cl)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request, u *store.User) {
	if err := s.Store.DeleteClient(u.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

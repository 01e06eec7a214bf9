package server

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/baswilson/navsite/internal/auth"
	"github.com/baswilson/navsite/internal/notify"
	"github.com/baswilson/navsite/internal/users"
)

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	u, err := s.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": u})
}

// handleListUsers lists users, paginated when ?page= is given
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if page := queryInt(r, "page"); page > 0 {
		p, err := s.users.ListPage(r.Context(), page, queryInt(r, "pageSize"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}
	list, err := s.users.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "keyword is required")
		return
	}
	list, err := s.users.Search(r.Context(), keyword)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "data": list})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.users.Stats(r.Context(), time.Now().Add(-users.ActiveWindow))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": u})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.users.Create(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityUsers)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "user created", "data": u})
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateUserRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.users.Update(r.Context(), id, req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityUsers)
	writeJSON(w, http.StatusOK, map[string]any{"message": "user updated", "data": u})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	claims, _ := auth.FromContext(r.Context())
	if claims.UserID == id {
		writeError(w, http.StatusBadRequest, "cannot delete the current user")
		return
	}
	deleted, err := s.users.Delete(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if deleted == 0 {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	s.changed(r.Context(), notify.EntityUsers)
	writeJSON(w, http.StatusOK, messageResponse{Message: "user deleted"})
}

func (s *Server) handleBatchDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decode(w, r, &req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must be a non-empty array")
		return
	}
	claims, _ := auth.FromContext(r.Context())
	if slices.Contains(req.IDs, claims.UserID) {
		writeError(w, http.StatusBadRequest, "cannot delete the current user")
		return
	}
	deleted, err := s.users.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityUsers)
	writeJSON(w, http.StatusOK, map[string]any{"message": "users deleted", "deleted": deleted})
}

package server

import (
	"net/http"
	"strings"

	"github.com/baswilson/navsite/internal/auth"
	"github.com/baswilson/navsite/internal/friends"
	"github.com/baswilson/navsite/internal/notify"
)

// handleListFriends shows disabled links only to logged in users
func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if token, err := auth.BearerToken(r); err == nil {
		if _, err := s.issuer.Verify(token); err == nil {
			activeOnly = false
		}
	}
	links, err := s.friends.List(r.Context(), activeOnly)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func decodeFriend(w http.ResponseWriter, r *http.Request) (friends.Input, bool) {
	var in friends.Input
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return in, false
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.URL) == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return in, false
	}
	return in, true
}

func (s *Server) handleCreateFriend(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeFriend(w, r)
	if !ok {
		return
	}
	id, err := s.friends.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityFriends)
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *Server) handleUpdateFriend(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	in, ok := decodeFriend(w, r)
	if !ok {
		return
	}
	changed, err := s.friends.Update(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityFriends)
	writeJSON(w, http.StatusOK, map[string]int64{"changed": changed})
}

func (s *Server) handleDeleteFriend(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	deleted, err := s.friends.Delete(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityFriends)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

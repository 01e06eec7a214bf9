package server

import (
	"net/http"

	"github.com/baswilson/navsite/internal/ads"
	"github.com/baswilson/navsite/internal/notify"
	"github.com/go-chi/chi/v5"
)

// handleListAds lists ads, paginated when ?page= is given
func (s *Server) handleListAds(w http.ResponseWriter, r *http.Request) {
	position := r.URL.Query().Get("position")
	if page := queryInt(r, "page"); page > 0 {
		p, err := s.ads.ListPage(r.Context(), position, page, queryInt(r, "pageSize"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}
	list, err := s.ads.List(r.Context(), position)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAd(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ad, err := s.ads.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ad)
}

func (s *Server) handleActiveAds(w http.ResponseWriter, r *http.Request) {
	list, err := s.ads.ListActive(r.Context(), chi.URLParam(r, "position"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAdStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ads.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCreateAd(w http.ResponseWriter, r *http.Request) {
	var p ads.Patch
	if err := decode(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Position == nil || *p.Position == "" || p.Img == nil || *p.Img == "" {
		writeError(w, http.StatusBadRequest, "position and img are required")
		return
	}
	ad, err := s.ads.Create(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityAds)
	writeJSON(w, http.StatusOK, map[string]any{"id": ad.ID, "data": ad})
}

func (s *Server) handleUpdateAd(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var p ads.Patch
	if err := decode(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ad, err := s.ads.Update(r.Context(), id, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityAds)
	writeJSON(w, http.StatusOK, map[string]any{"changed": 1, "data": ad})
}

func (s *Server) handleDeleteAd(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ad, err := s.ads.Delete(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityAds)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": 1, "ad": ad})
}

func (s *Server) handleBatchDeleteAds(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decode(w, r, &req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must be a non-empty array")
		return
	}
	deleted, err := s.ads.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityAds)
	writeJSON(w, http.StatusOK, map[string]any{"message": "ads deleted", "deleted": deleted})
}

func (s *Server) handleSortAds(w http.ResponseWriter, r *http.Request) {
	s.sort(w, r, notify.EntityAds, s.ads.Sort)
}

func (s *Server) handleToggleAd(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	active, err := s.ads.Toggle(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityAds)
	writeJSON(w, http.StatusOK, map[string]any{"message": "status updated", "is_active": active})
}

func (s *Server) handleCloneAd(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ad, err := s.ads.Clone(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityAds)
	writeJSON(w, http.StatusOK, map[string]any{"message": "ad cloned", "id": ad.ID, "data": ad})
}

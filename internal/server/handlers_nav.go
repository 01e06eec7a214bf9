package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/baswilson/navsite/internal/nav"
	"github.com/baswilson/navsite/internal/notify"
	"github.com/rs/zerolog"
)

// cached serves key from the cache, or renders load and stores the result
func (s *Server) cached(w http.ResponseWriter, r *http.Request, key string, load func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	body, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	if hit {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		_, _ = w.Write(body)
		return
	}

	v, err := load(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body, err = json.Marshal(v)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.cache.Set(ctx, key, body); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	_, _ = w.Write(body)
}

func (s *Server) handleListMenus(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, notify.CacheKeyMenus, func(ctx context.Context) (any, error) {
		return s.nav.ListMenus(ctx)
	})
}

func (s *Server) handleCreateMenu(w http.ResponseWriter, r *http.Request) {
	var in nav.MenuInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "menu name is required")
		return
	}
	id, err := s.nav.CreateMenu(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityMenus)
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *Server) handleUpdateMenu(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in nav.MenuInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	changed, err := s.nav.UpdateMenu(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityMenus)
	writeJSON(w, http.StatusOK, map[string]int64{"changed": changed})
}

func (s *Server) handleDeleteMenu(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	deleted, err := s.nav.DeleteMenu(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityMenus)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleSortMenus(w http.ResponseWriter, r *http.Request) {
	s.sort(w, r, notify.EntityMenus, s.nav.SortMenus)
}

// sort handles the {"ids": [...]} reorder endpoints
func (s *Server) sort(w http.ResponseWriter, r *http.Request, entity string, apply func(ctx context.Context, ids []int64) error) {
	var req idsRequest
	if err := decode(w, r, &req); err != nil || req.IDs == nil {
		writeError(w, http.StatusBadRequest, "ids must be an array")
		return
	}
	if err := apply(r.Context(), req.IDs); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), entity)
	writeJSON(w, http.StatusOK, messageResponse{Message: "order saved"})
}

func (s *Server) handleListSubMenus(w http.ResponseWriter, r *http.Request) {
	menuID, err := idParam(r, "menuId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	subs, err := s.nav.ListSubMenus(r.Context(), menuID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

type subMenuRequest struct {
	Name     string `json:"name"`
	OrderNum int    `json:"order_num"`
}

func (s *Server) handleCreateSubMenu(w http.ResponseWriter, r *http.Request) {
	menuID, err := idParam(r, "menuId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req subMenuRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "sub-menu name is required")
		return
	}
	id, err := s.nav.CreateSubMenu(r.Context(), menuID, req.Name, req.OrderNum)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityMenus)
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *Server) handleUpdateSubMenu(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req subMenuRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	changed, err := s.nav.UpdateSubMenu(r.Context(), id, req.Name, req.OrderNum)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityMenus)
	writeJSON(w, http.StatusOK, map[string]int64{"changed": changed})
}

func (s *Server) handleDeleteSubMenu(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	deleted, err := s.nav.DeleteSubMenu(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityMenus)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// subMenuQuery reads ?subMenuId=. The web client sends "null" and
// "undefined" literally when no sub-menu is selected.
func subMenuQuery(r *http.Request) *int64 {
	raw := r.URL.Query().Get("subMenuId")
	switch raw {
	case "", "null", "undefined", "0":
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	menuID, err := idParam(r, "menuId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cards, err := s.nav.ListCards(r.Context(), menuID, subMenuQuery(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var in nav.CardInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.MenuID == 0 || in.Title == "" || in.URL == "" {
		writeError(w, http.StatusBadRequest, "menu_id, title and url are required")
		return
	}
	id, err := s.nav.CreateCard(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityCards)
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in nav.CardInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	changed, err := s.nav.UpdateCard(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityCards)
	writeJSON(w, http.StatusOK, map[string]int64{"changed": changed})
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	deleted, err := s.nav.DeleteCard(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityCards)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleSortCards(w http.ResponseWriter, r *http.Request) {
	s.sort(w, r, notify.EntityCards, s.nav.SortCards)
}

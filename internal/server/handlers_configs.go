package server

import (
	"context"
	"net/http"

	"github.com/baswilson/navsite/internal/notify"
)

func (s *Server) handleGetConfigs(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, notify.CacheKeyConfigs, func(ctx context.Context) (any, error) {
		return s.settings.All(ctx)
	})
}

// handleSaveConfigs upserts every posted key in one transaction
func (s *Server) handleSaveConfigs(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := decode(w, r, &values); err != nil || len(values) == 0 {
		writeError(w, http.StatusBadRequest, "body must be a non-empty object of strings")
		return
	}
	if err := s.settings.SetMany(r.Context(), values); err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityConfigs)
	writeJSON(w, http.StatusOK, messageResponse{Message: "configs saved"})
}

package server

import (
	"net/http"
	"time"

	"github.com/baswilson/navsite/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestTimeout = 30 * time.Second

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware)
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Get("/verify", s.handleVerify)
		r.Get("/check-username/{username}", s.handleCheckUsername)
		r.Group(func(r chi.Router) {
			r.Use(s.issuer.Require)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)
			r.Post("/change-password", s.handleChangePassword)
		})

		r.Route("/menus", func(r chi.Router) {
			r.Get("/", s.handleListMenus)
			r.Get("/{menuId}/sub", s.handleListSubMenus)
			r.Group(func(r chi.Router) {
				r.Use(s.issuer.Require)
				r.Post("/", s.handleCreateMenu)
				r.Post("/sort", s.handleSortMenus)
				r.Put("/{id}", s.handleUpdateMenu)
				r.Delete("/{id}", s.handleDeleteMenu)
				r.Post("/{menuId}/sub", s.handleCreateSubMenu)
				r.Put("/sub/{id}", s.handleUpdateSubMenu)
				r.Delete("/sub/{id}", s.handleDeleteSubMenu)
			})
		})

		r.Route("/cards", func(r chi.Router) {
			r.Get("/{menuId}", s.handleListCards)
			r.Group(func(r chi.Router) {
				r.Use(s.issuer.Require)
				r.Post("/", s.handleCreateCard)
				r.Post("/sort", s.handleSortCards)
				r.Put("/{id}", s.handleUpdateCard)
				r.Delete("/{id}", s.handleDeleteCard)
			})
		})

		r.Route("/ads", func(r chi.Router) {
			r.Get("/", s.handleListAds)
			r.Get("/stats/summary", s.handleAdStats)
			r.Get("/active/{position}", s.handleActiveAds)
			r.Get("/{id}", s.handleGetAd)
			r.Group(func(r chi.Router) {
				r.Use(s.issuer.Require)
				r.Post("/", s.handleCreateAd)
				r.Post("/batch-delete", s.handleBatchDeleteAds)
				r.Post("/sort", s.handleSortAds)
				r.Put("/{id}", s.handleUpdateAd)
				r.Delete("/{id}", s.handleDeleteAd)
				r.Patch("/{id}/toggle", s.handleToggleAd)
				r.Post("/{id}/clone", s.handleCloneAd)
			})
		})

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", s.handleListFriends)
			r.Group(func(r chi.Router) {
				r.Use(s.issuer.Require)
				r.Post("/", s.handleCreateFriend)
				r.Put("/{id}", s.handleUpdateFriend)
				r.Delete("/{id}", s.handleDeleteFriend)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(s.issuer.Require)
			r.Get("/profile", s.handleProfile)
			r.Get("/me", s.handleProfile)
			r.Put("/password", s.handleChangePassword)
			r.Post("/batch-delete", s.handleBatchDeleteUsers)
			r.Get("/search", s.handleSearchUsers)
			r.Get("/stats/summary", s.handleUserStats)
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Get("/{id}", s.handleGetUser)
			r.Put("/{id}", s.handleUpdateUser)
			r.Delete("/{id}", s.handleDeleteUser)
		})

		r.Get("/configs", s.handleGetConfigs)
		r.With(s.issuer.Require).Put("/configs", s.handleSaveConfigs)
	})

	if s.config.WebDir != "" {
		r.NotFound(s.spaHandler(s.config.WebDir).ServeHTTP)
	}
}

// handleHealth reports liveness and whether the database answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ok"
	if err := s.db.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":    state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  string(s.db.Dialect()),
	})
}

// handleWebSocket attaches a browser to the change feed
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws.ServeWs(s.hub, w, r)
}

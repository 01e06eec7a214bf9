package server

import (
	"context"

	"github.com/baswilson/navsite/internal/ads"
	"github.com/baswilson/navsite/internal/auth"
	"github.com/baswilson/navsite/internal/cache"
	"github.com/baswilson/navsite/internal/config"
	"github.com/baswilson/navsite/internal/database"
	"github.com/baswilson/navsite/internal/friends"
	"github.com/baswilson/navsite/internal/nav"
	"github.com/baswilson/navsite/internal/notify"
	"github.com/baswilson/navsite/internal/settings"
	"github.com/baswilson/navsite/internal/users"
	"github.com/baswilson/navsite/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Server is the main application server
type Server struct {
	config   *config.Config
	log      zerolog.Logger
	router   *chi.Mux
	db       *database.Store
	hub      *ws.Hub
	cache    cache.Cache
	notifier notify.Notifier
	issuer   *auth.Issuer

	nav      *nav.Store
	ads      *ads.Store
	friends  *friends.Store
	users    *users.Store
	settings *settings.Store
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// WithCache caches public read endpoints in c
func WithCache(c cache.Cache) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// New creates a new Server instance. db must already be initialized.
func New(cfg *config.Config, db *database.Store, opts ...Option) *Server {
	s := &Server{
		config: cfg,
		log:    zerolog.Nop(),
		router: chi.NewRouter(),
		db:     db,
		cache:  cache.Noop{},
		issuer: auth.NewIssuer(cfg.JWTSecret),

		nav:      nav.NewStore(db),
		ads:      ads.NewStore(db),
		friends:  friends.NewStore(db),
		users:    users.NewStore(db),
		settings: settings.NewStore(db),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.hub = ws.NewHub(s.log)
	go s.hub.Run()

	s.notifier = notify.NewManager(
		notify.NewWebSocketNotifier(s.hub),
		notify.NewCacheNotifier(s.cache),
	)

	s.setupRoutes()
	return s
}

// Router returns the HTTP router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Shutdown disconnects WebSocket clients. The database is owned by the
// caller and closed there.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return nil
}

// changed tells browsers and the cache that entity was written
func (s *Server) changed(ctx context.Context, entity string) {
	if err := s.notifier.Changed(ctx, entity); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("entity", entity).Msg("change notification failed")
	}
}

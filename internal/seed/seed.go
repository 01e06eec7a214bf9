// Package seed fills a freshly bootstrapped database with the records the
// site needs to be usable: an admin account, default configs and a starter
// menu.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/baswilson/navsite/internal/database"
	"github.com/baswilson/navsite/internal/nav"
	"github.com/baswilson/navsite/internal/settings"
	"github.com/baswilson/navsite/internal/users"
	"github.com/rs/zerolog"
)

// DefaultConfigs are written when the key has no value yet
var DefaultConfigs = map[string]string{
	"site.title":                 "Nav",
	"site.name":                  "Nav",
	"site.customCss":             "",
	"site.backgroundImage":       "",
	"site.backgroundOpacity":     "0.15",
	"site.iconApi":               "https://www.google.com/s2/favicons?domain={domain}&sz=256",
	"site.searchBoxEnabled":      "true",
	"site.searchBoxGuestEnabled": "true",
}

const (
	starterMenu     = "Recommended"
	starterCardDesc = "Search the web"
)

// Options configures a seed run
type Options struct {
	AdminUsername string
	AdminPassword string
	Logger        zerolog.Logger
}

// Run seeds db. It is safe to call on every start and from several instances
// at once: existing rows are left alone and a lost insert race counts as
// already seeded.
func Run(ctx context.Context, db database.Transactor, opts Options) error {
	log := opts.Logger.With().Str("component", "seed").Logger()

	if err := seedConfigs(ctx, settings.NewStore(db), log); err != nil {
		return err
	}
	if err := seedAdmin(ctx, users.NewStore(db), opts, log); err != nil {
		return err
	}
	return seedMenu(ctx, db, log)
}

func seedConfigs(ctx context.Context, store *settings.Store, log zerolog.Logger) error {
	for key, value := range DefaultConfigs {
		written, err := store.InsertIfAbsent(ctx, key, value)
		if err != nil {
			return err
		}
		if written {
			log.Debug().Str("key", key).Msg("default config written")
		}
	}
	return nil
}

func seedAdmin(ctx context.Context, store *users.Store, opts Options, log zerolog.Logger) error {
	if opts.AdminUsername == "" {
		return nil
	}
	exists, err := store.Exists(ctx, opts.AdminUsername)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = store.CreateUnchecked(ctx, opts.AdminUsername, opts.AdminPassword)
	if errors.Is(err, database.ErrConstraint) {
		log.Info().Str("username", opts.AdminUsername).Msg("admin created by another instance")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	log.Info().Str("username", opts.AdminUsername).Msg("admin account created")
	return nil
}

func seedMenu(ctx context.Context, db database.Transactor, log zerolog.Logger) error {
	store := nav.NewStore(db)
	count, err := store.CountMenus(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	public := 1
	desc := starterCardDesc
	err = db.Transaction(ctx, func(ctx context.Context, _ database.Querier) error {
		menuID, err := store.CreateMenu(ctx, nav.MenuInput{Name: starterMenu, OrderNum: 1, IsPublic: &public})
		if err != nil {
			return err
		}
		_, err = store.CreateCard(ctx, nav.CardInput{
			MenuID:   menuID,
			Title:    "Google",
			URL:      "https://www.google.com",
			Desc:     &desc,
			OrderNum: 1,
		})
		return err
	})
	if errors.Is(err, database.ErrConstraint) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to seed starter menu: %w", err)
	}
	log.Info().Str("menu", starterMenu).Msg("starter menu created")
	return nil
}

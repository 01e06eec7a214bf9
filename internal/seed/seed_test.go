package seed

import (
	"context"
	"testing"

	"github.com/baswilson/navsite/internal/database/databasetest"
	"github.com/baswilson/navsite/internal/nav"
	"github.com/baswilson/navsite/internal/settings"
	"github.com/baswilson/navsite/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Idempotent(t *testing.T) {
	db := databasetest.NewSQLite(t)
	ctx := context.Background()
	opts := Options{AdminUsername: "admin", AdminPassword: "admin123", Logger: databasetest.Logger(t)}

	require.NoError(t, Run(ctx, db, opts))
	require.NoError(t, Run(ctx, db, opts))

	list, err := users.NewStore(db).List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "admin", list[0].Username)
	assert.True(t, list[0].CheckPassword("admin123"))

	configs, err := settings.NewStore(db).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigs, configs)

	menus, err := nav.NewStore(db).ListMenus(ctx)
	require.NoError(t, err)
	require.Len(t, menus, 1)
	assert.Equal(t, 1, menus[0].IsPublic)

	cards, err := nav.NewStore(db).ListCards(ctx, menus[0].ID, nil)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Google", cards[0].Title)
	assert.Equal(t, menus[0].ID, cards[0].MenuID)
}

func TestRun_KeepsExistingData(t *testing.T) {
	db := databasetest.NewSQLite(t)
	ctx := context.Background()

	require.NoError(t, settings.NewStore(db).Set(ctx, "site.title", "Mine"))
	_, err := nav.NewStore(db).CreateMenu(ctx, nav.MenuInput{Name: "Work"})
	require.NoError(t, err)

	require.NoError(t, Run(ctx, db, Options{Logger: databasetest.Logger(t)}))

	title, _, err := settings.NewStore(db).Get(ctx, "site.title")
	require.NoError(t, err)
	assert.Equal(t, "Mine", title)

	count, err := nav.NewStore(db).CountMenus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	list, err := users.NewStore(db).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

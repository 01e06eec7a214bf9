package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/baswilson/navsite/internal/config"
	"github.com/baswilson/navsite/internal/database/databasetest"
	"github.com/baswilson/navsite/internal/users"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Flags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_TYPE", "")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--db-type", "oracle"}))

	_, err := LoadConfig(fs)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestBootstrap(t *testing.T) {
	cfg := &config.Config{
		Env:   "development",
		Admin: config.Admin{Username: "root", Password: "rootpass"},
		DB:    config.DB{Type: "sqlite", Path: filepath.Join(t.TempDir(), "nav.db")},
	}
	ctx := context.Background()

	store, err := Bootstrap(ctx, cfg, databasetest.Logger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exists, err := users.NewStore(store).Exists(ctx, "root")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBootstrap_BadEngine(t *testing.T) {
	cfg := &config.Config{DB: config.DB{Type: "oracle"}}
	_, err := Bootstrap(context.Background(), cfg, databasetest.Logger(t))
	assert.Error(t, err)
}

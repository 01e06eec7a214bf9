package settings

import (
	"context"
	"testing"

	"github.com/baswilson/navsite/internal/database/databasetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetAndGet(t *testing.T) {
	s := NewStore(databasetest.NewSQLite(t))
	ctx := context.Background()

	_, found, err := s.Get(ctx, "site.title")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "site.title", "Nav"))
	require.NoError(t, s.Set(ctx, "site.title", "My Nav"))

	v, found, err := s.Get(ctx, "site.title")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "My Nav", v)
}

func TestStore_SetMany(t *testing.T) {
	s := NewStore(databasetest.NewSQLite(t))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "site.name", "old"))
	require.NoError(t, s.SetMany(ctx, map[string]string{
		"site.name":      "new",
		"site.customCss": "body{}",
	}))

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"site.name": "new", "site.customCss": "body{}"}, all)
}

func TestStore_InsertIfAbsent(t *testing.T) {
	s := NewStore(databasetest.NewSQLite(t))
	ctx := context.Background()

	written, err := s.InsertIfAbsent(ctx, "site.iconApi", "a")
	require.NoError(t, err)
	assert.True(t, written)

	written, err = s.InsertIfAbsent(ctx, "site.iconApi", "b")
	require.NoError(t, err)
	assert.False(t, written)

	v, _, err := s.Get(ctx, "site.iconApi")
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

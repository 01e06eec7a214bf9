package friends

import (
	"context"
	"testing"

	"github.com/baswilson/navsite/internal/database"
	"github.com/baswilson/navsite/internal/database/databasetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CRUD(t *testing.T) {
	s := NewStore(databasetest.NewSQLite(t))
	ctx := context.Background()

	desc := "a blog"
	id, err := s.Create(ctx, Input{Name: "Blog", URL: "https://blog.example.com", Description: &desc, OrderNum: 2})
	require.NoError(t, err)

	hidden := 0
	_, err = s.Create(ctx, Input{Name: "Old", URL: "https://old.example.com", OrderNum: 1, IsActive: &hidden})
	require.NoError(t, err)

	all, err := s.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Old", all[0].Name)

	active, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a blog", *active[0].Description)
	assert.Nil(t, active[0].LogoURL)

	changed, err := s.Update(ctx, id, Input{Name: "Blog 2", URL: "https://blog2.example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	l, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Blog 2", l.Name)
	assert.Nil(t, l.Description)

	deleted, err := s.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, database.ErrNotFound)

	deleted, err = s.Delete(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/baswilson/navsite/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	seen []string
	err  error
}

func (r *recorder) Changed(_ context.Context, entity string) error {
	r.seen = append(r.seen, entity)
	return r.err
}

func (r *recorder) Type() string { return "recorder" }

func TestManager_FansOut(t *testing.T) {
	failing := &recorder{err: errors.New("boom")}
	ok := &recorder{}
	m := NewManager(failing)
	m.Register(ok)

	err := m.Changed(context.Background(), EntityAds)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{EntityAds}, failing.seen)
	assert.Equal(t, []string{EntityAds}, ok.seen)
}

func TestCacheNotifier_Invalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := cache.NewRedis(rdb, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, CacheKeyMenus, []byte("[]")))
	require.NoError(t, c.Set(ctx, CacheKeyConfigs, []byte("{}")))

	n := NewCacheNotifier(c)
	require.NoError(t, n.Changed(ctx, EntityCards))
	_, found, err := c.Get(ctx, CacheKeyMenus)
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, n.Changed(ctx, EntityMenus))
	_, found, err = c.Get(ctx, CacheKeyMenus)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = c.Get(ctx, CacheKeyConfigs)
	require.NoError(t, err)
	assert.True(t, found)
}

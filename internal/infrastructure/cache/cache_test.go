// SPDX-License-Identifier: AGPL-3.0-or-later
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGetExpires(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k", "v", 20*time.Millisecond)
	val, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", val)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "entry should have expired")
}

func TestRedisCache_SetGet(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewFromURL("redis://" + mr.Addr())
	require.NoError(t, err)

	ctx := context.Background()
	cache.Set(ctx, "secret-miss:tenant-a:FOO", "1", time.Minute)

	val, ok := cache.Get(ctx, "secret-miss:tenant-a:FOO")
	require.True(t, ok)
	assert.Equal(t, "1", val)

	_, ok = cache.Get(ctx, "secret-miss:tenant-a:BAR")
	assert.False(t, ok)
}

func TestNewFromURL_EmptyReturnsMemoryCache(t *testing.T) {
	cache, err := NewFromURL("")
	require.NoError(t, err)
	_, ok := cache.(*MemoryCache)
	assert.True(t, ok)
}

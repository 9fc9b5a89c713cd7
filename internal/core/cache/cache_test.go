package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/iatidocs/internal/models"
)

func TestLRUCache_GetPut(t *testing.T) {
	c, err := NewLRU(2)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "a", &models.ExtractedRecord{Text: "alpha"}))
	rec, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alpha", rec.Text)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRU(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", &models.ExtractedRecord{Text: "a"}))
	require.NoError(t, c.Put(ctx, "b", &models.ExtractedRecord{Text: "b"}))
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Put(ctx, "c", &models.ExtractedRecord{Text: "c"}))

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
}

func TestNewLRU_RejectsNonPositiveSize(t *testing.T) {
	_, err := NewLRU(0)
	assert.Error(t, err)
}

func TestRedisCache_Key(t *testing.T) {
	c := &RedisCache{}
	assert.Equal(t, "iatidocs:extract:abc", c.key("abc"))
}

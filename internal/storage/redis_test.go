package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKeysAreNamespaced(t *testing.T) {
	keys := newRedisKeys("", "docs")
	assert.Equal(t, "docassistant:docs:records", keys.records)
	assert.Equal(t, "docassistant:docs:order", keys.order)
	assert.Equal(t, "docassistant:docs:seq", keys.seq)

	custom := newRedisKeys("tenant-a", "notes")
	assert.Equal(t, "tenant-a:notes:records", custom.records)
}

func TestOpenRedisFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	col, err := OpenRedis(ctx, RedisOptions{Addr: "127.0.0.1:1"}, "docs")
	require.Error(t, err)
	assert.Nil(t, col)
	assert.Contains(t, err.Error(), "ping redis")
}

// TestRedisCollectionRoundTrip runs against a live server when REDIS_ADDR is set.
func TestRedisCollectionRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis round trip")
	}

	ctx := context.Background()
	col, err := OpenRedis(ctx, RedisOptions{Addr: addr, KeyPrefix: "test-" + uuid.NewString()}, "docs")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = col.Reset(ctx)
		_ = col.Close()
	})

	require.NoError(t, col.Add(ctx,
		Record{ID: "b", Document: "beta", Embedding: []float32{0, 1}, Metadata: Metadata{"title": "B"}},
		Record{ID: "a", Document: "alpha", Embedding: []float32{1, 0}},
	))

	res, err := col.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, res.IDs)
	assert.Equal(t, "B", res.Metadatas[0]["title"])

	matches, err := col.Query(ctx, []float32{1, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, col.Reset(ctx))
	n, err = col.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

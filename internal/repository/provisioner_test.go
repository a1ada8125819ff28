package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graph-persistence/internal/metadata"
)

func TestProvisioner_BuildsHandlePerStorage(t *testing.T) {
	client, _ := redisClient(t)
	descs, err := metadata.ParseDescriptors([]byte(`
entities:
  - entity: order
    storage: sql
  - entity: cart
    storage: redis
  - entity: draft
    storage: memory
`))
	require.NoError(t, err)

	p := NewProvisioner(metadata.Descriptors(descs), WithStore(sqliteStore(t)), WithRedis(client, "x"))
	handles, err := p.Handles(context.Background())
	require.NoError(t, err)
	require.Len(t, handles, 3)

	assert.IsType(t, &SQLHandle{}, handles[0])
	assert.IsType(t, &RedisHandle{}, handles[1])
	assert.IsType(t, &MemoryHandle{}, handles[2])
	assert.Equal(t, "cart", handles[1].EntityType())

	again, err := p.Handles(context.Background())
	require.NoError(t, err)
	assert.Same(t, handles[2], again[2], "memory handles are reused")
}

func TestProvisioner_MissingBackend(t *testing.T) {
	descs, err := metadata.ParseDescriptors([]byte(`
entities:
  - entity: order
`))
	require.NoError(t, err)

	_, err = NewProvisioner(metadata.Descriptors(descs)).Handles(context.Background())
	assert.Error(t, err, "sql storage without a store")
}

func TestIDKey_NormalisesNumbers(t *testing.T) {
	assert.Equal(t, "7", idKey(7))
	assert.Equal(t, "7", idKey(int64(7)))
	assert.Equal(t, "7", idKey(7.0))
	assert.Equal(t, "7.5", idKey(7.5))
	assert.Equal(t, "abc", idKey("abc"))
}

package clinical

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestStoreRedis(t *testing.T) {
	suite.Run(t, &StoreSuite{newBackend: func(t *testing.T) Backend {
		backend, _ := newRedisBackend(t)
		return backend
	}})
}

func newRedisBackend(t *testing.T) (*RedisBackend, *redis.Client) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBackend(client, "patients_medical"), client
}

func TestRedisInsertIndexesDocument(t *testing.T) {
	backend, client := newRedisBackend(t)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, backend.Insert(ctx, id, map[string]interface{}{KeyLinkingID: id, KeyAge: 50}))
	assert.ErrorIs(t, backend.Insert(ctx, id, map[string]interface{}{KeyLinkingID: id}), ErrAlreadyExists)

	members, err := client.SMembers(ctx, "patients_medical:ids").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{id}, members)

	var seen []string
	for doc, err := range backend.Scan(ctx) {
		require.NoError(t, err)
		seen = append(seen, doc.ID)
		assert.EqualValues(t, 50, doc.Fields[KeyAge])
	}
	assert.Equal(t, []string{id}, seen)
}

func TestRedisRemoveDropsIndexEntry(t *testing.T) {
	backend, client := newRedisBackend(t)
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, backend.Insert(ctx, id, map[string]interface{}{KeyLinkingID: id}))

	removed, err := backend.Remove(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	n, err := client.SCard(ctx, "patients_medical:ids").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

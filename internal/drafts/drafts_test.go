package drafts

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	id := uuid.NewString()

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Put(ctx, id, "q1", 2))
	require.NoError(t, s.Put(ctx, id, "q2", 0))
	require.NoError(t, s.Put(ctx, id, "q1", 1))

	got, err = s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"q1": 1, "q2": 0}, got)

	require.NoError(t, s.Delete(ctx, id))
	got, err = s.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "a", "q1", 1))
	got, _ := s.Load(ctx, "a")
	got["q1"] = 9
	again, _ := s.Load(ctx, "a")
	assert.Equal(t, 1, again["q1"])
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := Connect(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	defer rdb.Close()
	exerciseStore(t, NewRedisStore(rdb, time.Minute))
}

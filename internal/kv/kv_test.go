package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "users")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "users", `[{"id":"u1"}]`))
	v, ok, err := s.Get(ctx, "users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"u1"}]`, v)

	require.NoError(t, s.Set(ctx, "users", `[]`))
	v, _, err = s.Get(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, `[]`, v)

	require.NoError(t, s.Set(ctx, "auth_token", "tok"))
	require.NoError(t, s.Remove(ctx, "auth_token"))
	_, ok, err = s.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.False(t, ok)

	// removing a missing key is not an error
	require.NoError(t, s.Remove(ctx, "missing"))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	runStoreContract(t, s)
	require.NoError(t, s.Close())
	_, _, err := s.Get(context.Background(), "users")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPebbleStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")
	s, err := OpenPebble(dir)
	require.NoError(t, err)
	runStoreContract(t, s)

	require.NoError(t, s.Set(context.Background(), "stories", `[1]`))
	require.NoError(t, s.Close())

	// survives reopen
	s2, err := OpenPebble(dir)
	require.NoError(t, err)
	defer s2.Close()
	v, ok, err := s2.Get(context.Background(), "stories")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[1]`, v)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "dev1")
	runStoreContract(t, s)

	require.NoError(t, s.Set(context.Background(), "posts", "[]"))
	assert.True(t, mr.Exists("dev1:posts"))
	require.NoError(t, s.Close())
}

func TestSQLStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	s, err := NewSQLStore(db)
	require.NoError(t, err)
	runStoreContract(t, s)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, time.Hour)
}

func TestRedis_SetGet(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	desc := "Оборудование цеха"
	cfg := testConfig("equipment", "EQ")
	cfg.Description = &desc
	cfg.CurrentNumber = 42

	require.NoError(t, c.Set(ctx, cfg))
	assert.True(t, mr.Exists(Key("equipment")))
	assert.Equal(t, time.Hour, mr.TTL(Key("equipment")))

	got, ok, err := c.Get(ctx, "equipment")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "EQ", got.Prefix)
	assert.Equal(t, uint64(42), got.CurrentNumber)
	require.NotNil(t, got.Description)
	assert.Equal(t, desc, *got.Description)
}

func TestRedis_Miss(t *testing.T) {
	_, c := setupTestRedis(t)

	got, ok, err := c.Get(context.Background(), "equipment")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestRedis_Invalidate(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, testConfig("equipment", "EQ")))
	require.NoError(t, c.Invalidate(ctx, "equipment"))
	assert.False(t, mr.Exists(Key("equipment")))

	_, ok, err := c.Get(ctx, "equipment")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Expiry(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, testConfig("equipment", "EQ")))
	mr.FastForward(2 * time.Hour)

	_, ok, err := c.Get(ctx, "equipment")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_CorruptedValue(t *testing.T) {
	mr, c := setupTestRedis(t)
	require.NoError(t, mr.Set(Key("equipment"), "{not json"))

	_, ok, err := c.Get(context.Background(), "equipment")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(Key("equipment")), "повреждённая запись должна удаляться")
}

func TestRedis_ForeignEntry(t *testing.T) {
	mr, c := setupTestRedis(t)
	// Запись под чужим ключом считается промахом
	require.NoError(t, mr.Set(Key("equipment"), `{"entityType":"vehicle","prefix":"VH"}`))

	_, ok, err := c.Get(context.Background(), "equipment")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Unavailable(t *testing.T) {
	mr, c := setupTestRedis(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "equipment")
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), testConfig("equipment", "EQ")))
}

func TestReadinessChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	checker := NewReadinessChecker(client)

	status, _ := checker.CheckReady()
	assert.Equal(t, "ok", status)

	mr.Close()
	status, msg := checker.CheckReady()
	assert.Equal(t, "degraded", status)
	assert.Contains(t, msg, "Redis недоступен")
}

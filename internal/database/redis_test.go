package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisDB, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisDBFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "rate_limit:203.0.113.9", RateLimitKey("203.0.113.9"))
	assert.Equal(t, "safe_domains:https://example.com/", SafeDomainKey("https://example.com/"))
}

// Missing keys are a found=false result, never an error: callers treat the
// cache as optional.
func TestGetStringFoundReporting(t *testing.T) {
	db, _ := newTestRedis(t)
	ctx := context.Background()

	_, found, err := db.GetString(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.SetString(ctx, "verdict", "safe", time.Minute))

	got, found, err := db.GetString(ctx, "verdict")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "safe", got)
}

func TestJSONRoundTrip(t *testing.T) {
	db, mr := newTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, db.SetJSON(ctx, "p", payload{Name: "abc", Count: 3}, 30*time.Second))
	assert.Equal(t, 30*time.Second, mr.TTL("p"))

	var got payload
	found, err := db.GetJSON(ctx, "p", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "abc", Count: 3}, got)

	found, err = db.GetJSON(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)

	mr.Set("broken", "{not-json")
	_, err = db.GetJSON(ctx, "broken", &got)
	assert.Error(t, err)
}

func TestIncrementWindow(t *testing.T) {
	db, mr := newTestRedis(t)
	ctx := context.Background()
	const window = 30 * time.Second

	for want := int64(1); want <= 3; want++ {
		count, ttl, err := db.IncrementWindow(ctx, "rate_limit:client", window)
		require.NoError(t, err)
		assert.Equal(t, want, count)
		assert.Equal(t, window, ttl)
	}

	// Once the window lapses the counter starts over.
	mr.FastForward(window + time.Second)
	count, _, err := db.IncrementWindow(ctx, "rate_limit:client", window)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDeleteAndKeysByPrefix(t *testing.T) {
	db, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, db.SetString(ctx, "cache:a", "1", 0))
	require.NoError(t, db.SetString(ctx, "cache:b", "2", 0))
	require.NoError(t, db.SetString(ctx, "rate_limit:c", "3", 0))

	keys, err := db.KeysByPrefix(ctx, "cache:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cache:a", "cache:b"}, keys)

	// Deleting a mix of live and missing keys is not an error.
	require.NoError(t, db.Delete(ctx, "cache:a", "cache:b", "cache:ghost"))
	require.NoError(t, db.Delete(ctx))

	keys, err = db.KeysByPrefix(ctx, "cache:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

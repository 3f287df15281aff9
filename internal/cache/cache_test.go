package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache("hazoom")
	ctx := context.Background()

	key := c.Key("models", "list")
	assert.Equal(t, "hazoom:models:list", key)

	var got payload
	assert.ErrorIs(t, c.GetJSON(ctx, key, &got), ErrMiss)

	require.NoError(t, c.SetJSON(ctx, key, payload{Name: "llama2", Count: 2}, time.Minute))
	require.NoError(t, c.GetJSON(ctx, key, &got))
	assert.Equal(t, payload{Name: "llama2", Count: 2}, got)

	require.NoError(t, c.Delete(ctx, key))
	assert.ErrorIs(t, c.GetJSON(ctx, key, &got), ErrMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache("")
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	assert.Equal(t, "a:b", c.Key("a", "b"))

	require.NoError(t, c.SetJSON(ctx, "k", 1, 30*time.Second))
	require.NoError(t, c.SetJSON(ctx, "forever", 2, 0))

	now = now.Add(29 * time.Second)
	var v int
	require.NoError(t, c.GetJSON(ctx, "k", &v))

	now = now.Add(time.Second)
	assert.ErrorIs(t, c.GetJSON(ctx, "k", &v), ErrMiss)

	now = now.Add(24 * time.Hour)
	require.NoError(t, c.GetJSON(ctx, "forever", &v))
	assert.Equal(t, 2, v)
}

func TestMemoryCacheMarshalError(t *testing.T) {
	c := NewMemoryCache("")
	err := c.SetJSON(context.Background(), "k", func() {}, time.Minute)
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	c := NewMemoryCache("")
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (payload, error) {
		calls++
		return payload{Name: "snap", Count: calls}, nil
	}

	first, err := Fetch(ctx, c, "snap", time.Minute, load)
	require.NoError(t, err)
	second, err := Fetch(ctx, c, "snap", time.Minute, load)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestFetchLoadError(t *testing.T) {
	c := NewMemoryCache("")
	boom := errors.New("boom")

	_, err := Fetch(context.Background(), c, "k", time.Minute, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	var v int
	assert.ErrorIs(t, c.GetJSON(context.Background(), "k", &v), ErrMiss, "failed loads are not cached")
}

func TestNewWithoutRedis(t *testing.T) {
	c, err := New("", "p")
	require.NoError(t, err)
	_, ok := c.(*MemoryCache)
	assert.True(t, ok)
}

func TestNewBadRedisURL(t *testing.T) {
	_, err := New("not a url", "p")
	assert.Error(t, err)
}

// TestRedisCache runs against a live server when HAZOOM_TEST_REDIS_URL is set.
func TestRedisCache(t *testing.T) {
	url := os.Getenv("HAZOOM_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HAZOOM_TEST_REDIS_URL not set")
	}

	c, err := NewRedisCache(url, "hazoom-test")
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	key := c.Key("roundtrip", time.Now().Format(time.RFC3339Nano))
	var got payload
	assert.ErrorIs(t, c.GetJSON(ctx, key, &got), ErrMiss)

	require.NoError(t, c.SetJSON(ctx, key, payload{Name: "x", Count: 1}, time.Minute))
	require.NoError(t, c.GetJSON(ctx, key, &got))
	assert.Equal(t, "x", got.Name)

	require.NoError(t, c.Delete(ctx, key))
	assert.ErrorIs(t, c.GetJSON(ctx, key, &got), ErrMiss)
}

package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetUnderPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Options{Addr: mr.Addr()})
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "track:MSCU1234566", []byte(`{"container":"MSCU1234566"}`), time.Minute))

	b, ok, err := c.Get(ctx, "track:MSCU1234566")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"container":"MSCU1234566"}`, string(b))

	require.True(t, mr.Exists("boxtrack:track:MSCU1234566"))
	require.False(t, mr.Exists("track:MSCU1234566"))
}

func TestRedisCache_SelectsDB(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Options{Addr: mr.Addr(), DB: 2, KeyPrefix: "bt:"})
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	v, err := mr.DB(2).Get("bt:k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
	require.False(t, mr.Exists("bt:k"))
}

func TestRedisCache_MissAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Options{Addr: mr.Addr(), KeyPrefix: "t:"})
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Options{Addr: mr.Addr()})
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	require.Error(t, c.Ping(context.Background()))
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(Options{Addr: mr.Addr()})
	defer rl.Close()

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:prefetch:MSCU:202503011000", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
	require.True(t, mr.Exists("boxtrack:rl:prefetch:MSCU:202503011000"))

	ok, n, _ = rl.Allow(ctx, "rl:prefetch:MSCU:202503011000", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:prefetch:MSCU:202503011000", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	// ключ окна истёк
	mr.FastForward(time.Minute + time.Second)
	ok, n, _ = rl.Allow(ctx, "rl:prefetch:MSCU:202503011000", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestRateLimiter_ZeroLimitDenies(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(Options{Addr: mr.Addr()})
	defer rl.Close()

	ok, _, err := rl.Allow(context.Background(), "rl:x", 0, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

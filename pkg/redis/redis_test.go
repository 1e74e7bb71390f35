package redis_test

import (
	"context"
	"testing"
	"time"

	"food_rescue/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*rd.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestClaimRequest(t *testing.T) {
	rdb, mr := newClient(t)
	ctx := context.Background()

	owner, claimed, err := redis.ClaimRequest(ctx, rdb, 42, "k1", "req-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "req-a", owner)

	owner, claimed, err = redis.ClaimRequest(ctx, rdb, 42, "k1", "req-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "req-a", owner)

	// same key, different recipient
	_, claimed, err = redis.ClaimRequest(ctx, rdb, 43, "k1", "req-c", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	mr.FastForward(2 * time.Hour)
	_, claimed, err = redis.ClaimRequest(ctx, rdb, 42, "k1", "req-d", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed, "claim must lapse with its ttl")
}

func TestReleaseClaimIfMatch(t *testing.T) {
	rdb, mr := newClient(t)
	ctx := context.Background()

	_, _, err := redis.ClaimRequest(ctx, rdb, 1, "k", "req-a", time.Hour)
	require.NoError(t, err)

	require.NoError(t, redis.ReleaseClaimIfMatch(ctx, rdb, 1, "k", "req-other"))
	assert.True(t, mr.Exists(redis.IdempotencyKey(1, "k")))

	require.NoError(t, redis.ReleaseClaimIfMatch(ctx, rdb, 1, "k", "req-a"))
	assert.False(t, mr.Exists(redis.IdempotencyKey(1, "k")))
}

func TestRequestState(t *testing.T) {
	rdb, mr := newClient(t)
	ctx := context.Background()

	_, found, err := redis.GetRequestState(ctx, rdb, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	want := redis.RequestState{RequestID: "req-a", Status: redis.RequestSuccess, ReservationID: 17}
	require.NoError(t, redis.PutRequestState(ctx, rdb, want, time.Hour))

	got, found, err := redis.GetRequestState(ctx, rdb, "req-a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
	assert.Equal(t, time.Hour, mr.TTL(redis.RequestStatusKey("req-a")))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "food_rescue:rate_limit:reserve:user:5", redis.RateLimitKey("reserve", "user:5"))
	assert.Equal(t, "food_rescue:idem:5:abc", redis.IdempotencyKey(5, "abc"))
	assert.Equal(t, "food_rescue:request:status:r1", redis.RequestStatusKey("r1"))
}

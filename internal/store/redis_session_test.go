package store

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisSessionStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionStore(client), mr
}

func TestRedisSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedisSessionStore(t)

	got, err := rs.GetSession(ctx, "+1555")
	require.NoError(t, err)
	assert.Nil(t, got)

	session := testSession("+1555", time.Now().UTC())
	require.NoError(t, rs.SaveSession(ctx, session))
	assert.True(t, mr.Exists(redisSessionKeyPrefix+"+1555"))

	got, err = rs.GetSession(ctx, "+1555")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.Context, got.Context)
	assert.Equal(t, models.StepAwaitingDate, got.Step)

	require.NoError(t, rs.DeleteSession(ctx, "+1555"))
	assert.False(t, mr.Exists(redisSessionKeyPrefix+"+1555"))
}

func TestRedisSessionStore_KeyExpires(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedisSessionStore(t)

	require.NoError(t, rs.SaveSession(ctx, testSession("+1555", time.Now())))
	ttl := mr.TTL(redisSessionKeyPrefix + "+1555")
	assert.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute, "ttl = %v", ttl)

	mr.FastForward(11 * time.Minute)
	got, err := rs.GetSession(ctx, "+1555")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := rs.DeleteExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisSessionStore_CorruptValueDropped(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedisSessionStore(t)
	require.NoError(t, mr.Set(redisSessionKeyPrefix+"+1555", "{broken"))

	got, err := rs.GetSession(ctx, "+1555")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists(redisSessionKeyPrefix+"+1555"))
}

func TestRedisSessionStore_ServerDown(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedisSessionStore(t)
	mr.Close()

	_, err := rs.GetSession(ctx, "+1555")
	assert.Error(t, err)
}

func TestWithSessionRepoRoutesSessions(t *testing.T) {
	ctx := context.Background()
	rs, mr := newTestRedisSessionStore(t)
	base := NewInMemoryStore()
	combined := WithSessionRepo(base, rs)

	require.NoError(t, combined.SaveSession(ctx, testSession("+1555", time.Now())))
	assert.True(t, mr.Exists(redisSessionKeyPrefix+"+1555"))
	fromBase, _ := base.GetSession(ctx, "+1555")
	assert.Nil(t, fromBase, "sessions must not reach the base store")

	platforms, err := combined.ListPlatformTemplates(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, platforms)

	assert.Same(t, base, WithSessionRepo(base, nil))
}

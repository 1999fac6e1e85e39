package redisdb

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, assert *require.Assertions) (*Client, *miniredis.Miniredis) {
	server := miniredis.RunT(t)
	client, err := Open(logger.Discard(), &redis.Options{Addr: server.Addr()})
	assert.NoError(err, "could not connect to miniredis")
	t.Cleanup(func() { client.Close() })
	return client, server
}

func TestGetSetDel(t *testing.T) {
	assert := require.New(t)
	client, server := newTestClient(t, assert)
	ctx := context.Background()

	assert.NoError(client.Set(ctx, "search:abc", "cached", time.Minute))
	value, err := client.Get(ctx, "search:abc")
	assert.NoError(err)
	assert.Equal("cached", value)

	server.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, "search:abc")
	assert.True(IsNilError(err), "expired keys read as nil")

	assert.NoError(client.Set(ctx, "k", "v", 0))
	assert.NoError(client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.True(IsNilError(err))
}

func TestFlushByPattern(t *testing.T) {
	assert := require.New(t)
	client, _ := newTestClient(t, assert)
	ctx := context.Background()

	assert.NoError(client.Set(ctx, "search:1", "a", 0))
	assert.NoError(client.Set(ctx, "search:2", "b", 0))
	assert.NoError(client.Set(ctx, "other", "c", 0))

	deleted, err := client.FlushByPattern(ctx, "search:*")
	assert.NoError(err)
	assert.Equal(int64(2), deleted)

	value, err := client.Get(ctx, "other")
	assert.NoError(err)
	assert.Equal("c", value)
}

func TestTopMembersIncludesTies(t *testing.T) {
	assert := require.New(t)
	client, _ := newTestClient(t, assert)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, member := range []string{"django", "django", "django", "python", "go"} {
		_, err := client.IncrementMember(ctx, "popular", "popular:last", member, base.Add(time.Duration(i)*time.Minute))
		assert.NoError(err)
	}

	members, err := client.TopMembers(ctx, "popular", "popular:last", 2)
	assert.NoError(err)
	assert.Len(members, 3, "members tied with the cutoff score are included")
	assert.Equal("django", members[0].Member)
	assert.Equal(float64(3), members[0].Score)
	assert.Equal(base.Add(2*time.Minute), members[0].LastSeen)

	empty, err := client.TopMembers(ctx, "missing", "missing:last", 5)
	assert.NoError(err)
	assert.Empty(empty)
}

func TestOpenFailsWhenUnreachable(t *testing.T) {
	assert := require.New(t)
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := Open(logger.Discard(), &redis.Options{Addr: addr})
	assert.Error(err)
}

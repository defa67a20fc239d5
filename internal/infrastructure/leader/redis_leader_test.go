package leader

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLeaderElection(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	a := NewRedisLeaderElection(client, 30*time.Second)
	b := NewRedisLeaderElection(client, 30*time.Second)
	defer a.ReleaseLeadership(ctx, "worker-a")
	defer b.ReleaseLeadership(ctx, "worker-b")

	became, err := a.BecomeLeader(ctx, "worker-a")
	require.NoError(t, err)
	assert.True(t, became)

	became, err = b.BecomeLeader(ctx, "worker-b")
	require.NoError(t, err)
	assert.False(t, became)

	isLeader, err := b.IsLeader(ctx, "worker-a")
	require.NoError(t, err)
	assert.True(t, isLeader)

	isLeader, err = b.IsLeader(ctx, "worker-b")
	require.NoError(t, err)
	assert.False(t, isLeader)

	// Only the holder can release.
	require.NoError(t, b.ReleaseLeadership(ctx, "worker-b"))
	holder, err := mr.Get(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "worker-a", holder)

	require.NoError(t, a.ReleaseLeadership(ctx, "worker-a"))
	assert.False(t, mr.Exists(DefaultKey))

	became, err = b.BecomeLeader(ctx, "worker-b")
	require.NoError(t, err)
	assert.True(t, became)
}

func TestRedisLeaderElection_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	a := NewRedisLeaderElection(client, 30*time.Second)
	defer a.ReleaseLeadership(ctx, "worker-a")

	became, err := a.BecomeLeader(ctx, "worker-a")
	require.NoError(t, err)
	require.True(t, became)

	mr.FastForward(31 * time.Second)

	isLeader, err := a.IsLeader(ctx, "worker-a")
	require.NoError(t, err)
	assert.False(t, isLeader)

	b := NewRedisLeaderElection(client, 30*time.Second)
	became, err = b.BecomeLeader(ctx, "worker-b")
	require.NoError(t, err)
	assert.True(t, became)
	require.NoError(t, b.ReleaseLeadership(ctx, "worker-b"))
}

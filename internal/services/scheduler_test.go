package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLeader struct {
	leader bool
	err    error
}

func (s staticLeader) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	return s.leader, s.err
}

func (s staticLeader) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	return s.leader, s.err
}

func (s staticLeader) ReleaseLeadership(ctx context.Context, instanceID string) error {
	return nil
}

func (env *testEnv) newSweeper(leader domain.LeaderElection, batchSize int) *CronExpirySweeper {
	return NewCronExpirySweeper(env.store, env.finalizer, leader, "worker-1", "@every 1h",
		batchSize, env.clock, logger.NewNop())
}

func TestSweepOnce_FinalizesExpiredListings(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()

	short := env.createListing(t, 100, time.Minute)
	_, err := env.bids.PlaceBid(ctx, short.ID, "bidder-1", 100)
	require.NoError(t, err)
	unsold := env.createListing(t, 100, 2*time.Minute)
	running := env.createListing(t, 100, time.Hour)

	env.clock.Advance(5 * time.Minute)

	sweeper := env.newSweeper(nil, 10)
	finalized, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, finalized)

	for id, want := range map[string]domain.ListingStatus{
		short.ID:   domain.ListingEnded,
		unsold.ID:  domain.ListingEnded,
		running.ID: domain.ListingActive,
	} {
		stored, err := env.store.GetListing(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Status, id)
	}

	stored, err := env.store.GetListing(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, "bidder-1", stored.WinnerID)
	assert.NotEmpty(t, stored.VerificationCredential)

	// Nothing left to do.
	finalized, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, finalized)
}

func TestSweepOnce_RespectsBatchSize(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.createListing(t, 100, time.Minute)
	}
	env.clock.Advance(time.Minute)

	sweeper := env.newSweeper(nil, 2)
	finalized, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, finalized)

	finalized, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)
}

func TestSweepOnce_FollowerSkips(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()

	listing := env.createListing(t, 100, time.Minute)
	env.clock.Advance(time.Minute)

	finalized, err := env.newSweeper(staticLeader{leader: false}, 10).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, finalized)

	stored, err := env.store.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingActive, stored.Status)

	leaderErr := errors.New("redis down")
	_, err = env.newSweeper(staticLeader{err: leaderErr}, 10).SweepOnce(ctx)
	assert.ErrorIs(t, err, leaderErr)

	finalized, err = env.newSweeper(staticLeader{leader: true}, 10).SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	env := newTestEnv(t, 5)

	sweeper := NewCronExpirySweeper(env.store, env.finalizer, nil, "worker-1", "not a schedule",
		10, env.clock, logger.NewNop())
	assert.Error(t, sweeper.Start(context.Background()))

	ok := env.newSweeper(nil, 10)
	require.NoError(t, ok.Start(context.Background()))
	assert.NoError(t, ok.Stop())
}

package services

import (
	"context"
	"sync"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"

	"github.com/robfig/cron/v3"
)

// CronExpirySweeper finalizes ACTIVE listings whose end time has passed, so
// an auction nobody reads again still ends and its winner gets the
// credential. It calls the same Finalizer as the lazy read path.
type CronExpirySweeper struct {
	cron           *cron.Cron
	listings       domain.ListingRepository
	finalizer      *Finalizer
	leaderElection domain.LeaderElection
	instanceID     string
	schedule       string
	batchSize      int
	clock          domain.Clock
	log            logger.Logger

	// running keeps overlapping cron ticks from sweeping twice at once.
	running sync.Mutex
}

func NewCronExpirySweeper(
	listings domain.ListingRepository,
	finalizer *Finalizer,
	leaderElection domain.LeaderElection,
	instanceID string,
	schedule string,
	batchSize int,
	clock domain.Clock,
	log logger.Logger,
) *CronExpirySweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CronExpirySweeper{
		cron:           cron.New(),
		listings:       listings,
		finalizer:      finalizer,
		leaderElection: leaderElection,
		instanceID:     instanceID,
		schedule:       schedule,
		batchSize:      batchSize,
		clock:          clock,
		log:            log,
	}
}

func (s *CronExpirySweeper) Start(ctx context.Context) error {
	s.log.Info("Starting expiry sweeper", "schedule", s.schedule)

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.log.Error("Expiry sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *CronExpirySweeper) Stop() error {
	s.log.Info("Stopping expiry sweeper")
	<-s.cron.Stop().Done()
	return nil
}

// SweepOnce finalizes up to one batch of expired listings and returns how
// many it transitioned. Followers skip the sweep.
func (s *CronExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		s.log.Debug("Sweep already running, skipping tick")
		return 0, nil
	}
	defer s.running.Unlock()

	if s.leaderElection != nil {
		isLeader, err := s.leaderElection.IsLeader(ctx, s.instanceID)
		if err != nil {
			return 0, err
		}
		if !isLeader {
			return 0, nil
		}
	}

	expired, err := s.listings.GetExpiredActiveListings(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	finalized := 0
	for _, listing := range expired {
		result, err := s.finalizer.Finalize(ctx, listing.ID, false)
		if err != nil {
			// Left ACTIVE; the next tick picks it up again.
			s.log.Error("Failed to finalize expired listing", "listing_id", listing.ID, "error", err)
			continue
		}
		if result.Transitioned {
			finalized++
		}
	}

	if len(expired) > 0 {
		s.log.Info("Expiry sweep done", "expired", len(expired), "finalized", finalized)
	}
	return finalized, nil
}

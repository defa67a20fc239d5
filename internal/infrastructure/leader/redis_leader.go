package leader

import (
	"context"
	"sync"
	"time"

	"waste-auction/internal/domain"

	"github.com/go-redis/redis/v8"
)

const DefaultKey = "waste_auction:sweeper_leader"

var (
	releaseScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `)

	refreshScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("PEXPIRE", KEYS[1], ARGV[2])
        else
            return 0
        end
    `)
)

var _ domain.LeaderElection = (*RedisLeaderElection)(nil)

type RedisLeaderElection struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu        sync.Mutex
	heartbeat context.CancelFunc
}

func NewRedisLeaderElection(client *redis.Client, ttl time.Duration) *RedisLeaderElection {
	return &RedisLeaderElection{
		client: client,
		key:    DefaultKey,
		ttl:    ttl,
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	result, err := r.client.SetNX(ctx, r.key, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if result {
		r.startHeartbeat(instanceID)
	}

	return result, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.stopHeartbeat()

	_, err := releaseScript.Run(ctx, r.client, []string{r.key}, instanceID).Result()
	return err
}

func (r *RedisLeaderElection) startHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.heartbeat != nil {
		r.heartbeat()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.heartbeat = cancel

	go r.maintainLeadership(ctx, instanceID)
}

func (r *RedisLeaderElection) stopHeartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.heartbeat != nil {
		r.heartbeat()
		r.heartbeat = nil
	}
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context, instanceID string) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result, err := refreshScript.Run(refreshCtx, r.client, []string{r.key},
			instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || result == 0 {
			// Lost leadership, stop heartbeat
			return
		}
	}
}

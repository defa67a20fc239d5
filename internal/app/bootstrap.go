// Package app wires configuration into repositories, notifiers and the
// engine services shared by the binaries under cmd/.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waste-auction/internal/config"
	"waste-auction/internal/domain"
	"waste-auction/internal/infrastructure/memory"
	"waste-auction/internal/infrastructure/mysql"
	natsinfra "waste-auction/internal/infrastructure/nats"
	"waste-auction/internal/infrastructure/notify"
	redisinfra "waste-auction/internal/infrastructure/redis"
	"waste-auction/internal/services"
	"waste-auction/pkg/logger"
	"waste-auction/pkg/utils"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
)

type Infra struct {
	DB    *sql.DB
	Redis *redis.Client
	NATS  *nats.Conn

	Listings domain.ListingRepository
	Ledger   domain.BidLedger
	Points   domain.PointsLedger
	Archive  domain.EventArchive
	Notifier domain.Notifier
}

// NewInfra connects to the configured backends. Redis is dialled when the
// notifier needs it or when needRedis is set (leader election, subscriber).
func NewInfra(ctx context.Context, cfg *config.Config, needRedis bool, log logger.Logger) (*Infra, error) {
	infra := &Infra{}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch cfg.Store.Driver {
	case "memory":
		store := memory.NewStore()
		infra.Listings = store
		infra.Ledger = store
		infra.Archive = store
		infra.Points = memory.NewPointsLedger()
		log.Warn("Using in-memory store, data is lost on restart")
	default:
		db, err := utils.InitializeMysql(connectCtx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		infra.DB = db
		if err := mysql.Migrate(connectCtx, db); err != nil {
			infra.Close()
			return nil, err
		}
		infra.Listings = mysql.NewMySQLListingRepository(db)
		infra.Ledger = mysql.NewMySQLBidRepository(db)
		infra.Points = mysql.NewMySQLPointsLedger(db)
		infra.Archive = mysql.NewMySQLEventArchive(db)
		log.Info("Connected to MySQL")
	}

	if needRedis || cfg.Notifier.Driver == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(connectCtx).Err(); err != nil {
			infra.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		infra.Redis = rdb
		log.Info("Connected to Redis", "address", cfg.Redis.Address)
	}

	switch cfg.Notifier.Driver {
	case "redis":
		infra.Notifier = redisinfra.NewEventPublisher(infra.Redis)
	case "nats":
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.Instance.ID))
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		infra.NATS = nc
		publisher, err := natsinfra.NewEventPublisher(connectCtx, nc, cfg.NATS.Stream)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Notifier = publisher
		log.Info("Connected to NATS", "url", cfg.NATS.URL, "stream", cfg.NATS.Stream)
	default:
		infra.Notifier = notify.NewLogNotifier(log)
	}

	return infra, nil
}

func (i *Infra) Close() {
	if i.NATS != nil {
		i.NATS.Close()
	}
	if i.Redis != nil {
		i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

type Engine struct {
	Events     *services.EventDispatcher
	Finalizer  *services.Finalizer
	Bids       *services.BidService
	Manager    *services.AuctionManager
	Settlement *services.SettlementService
}

func NewEngine(cfg *config.Config, infra *Infra, clock domain.Clock, log logger.Logger) *Engine {
	attempts := cfg.Bidding.MaxAttempts

	events := services.NewEventDispatcher(infra.Notifier, cfg.Notifier.BufferSize, cfg.Notifier.Timeout, log)
	finalizer := services.NewFinalizer(infra.Listings, infra.Ledger, events, clock, attempts, log)
	validator := services.NewBidValidator(cfg.Bidding.MinIncrement)

	return &Engine{
		Events:    events,
		Finalizer: finalizer,
		Bids:      services.NewBidService(infra.Listings, infra.Ledger, validator, finalizer, events, clock, attempts, log),
		Manager:   services.NewAuctionManager(infra.Listings, infra.Ledger, finalizer, events, clock, attempts, log),
		Settlement: services.NewSettlementService(infra.Listings, infra.Points, events, clock,
			cfg.Settlement.SellerReward, cfg.Settlement.BuyerReward, attempts, log),
	}
}

// Close flushes pending events.
func (e *Engine) Close() {
	e.Events.Close()
}

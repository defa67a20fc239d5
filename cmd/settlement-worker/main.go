package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waste-auction/internal/api/handlers"
	"waste-auction/internal/api/middleware"
	"waste-auction/internal/app"
	"waste-auction/internal/config"
	"waste-auction/internal/domain"
	"waste-auction/internal/infrastructure/leader"
	redisinfra "waste-auction/internal/infrastructure/redis"
	"waste-auction/internal/services"
	"waste-auction/pkg/logger"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

// The settlement worker runs the expiry sweep, archives listing events and
// serves the admin API (manual sweep, settlement reconciliation).
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Settlement worker failed", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	log.Info("Starting settlement worker", "config", cfg.GetConfigString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.NewInfra(ctx, cfg, true, log)
	if err != nil {
		return fmt.Errorf("initialize infrastructure: %w", err)
	}
	defer infra.Close()

	engine := app.NewEngine(cfg, infra, domain.SystemClock{}, log)
	defer engine.Close()

	leaderElection := leader.NewRedisLeaderElection(infra.Redis, cfg.Leader.TTL)
	sweeper := services.NewCronExpirySweeper(
		infra.Listings,
		engine.Finalizer,
		leaderElection,
		cfg.Instance.ID,
		cfg.Sweep.Schedule,
		cfg.Sweep.BatchSize,
		domain.SystemClock{},
		log,
	)

	eventListener := services.NewEventListener(infra.Archive, log)
	eventSubscriber := redisinfra.NewRedisEventSubscriber(infra.Redis, log)

	router := mux.NewRouter()
	router.Use(middleware.CORS)
	router.Use(middleware.RequestLogging(log))
	handlers.NewAdminHandler(sweeper, engine.Settlement, infra.Points, infra.Archive, log).Register(router)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Admin.Host, cfg.Admin.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		<-gctx.Done()
		return sweeper.Stop()
	})

	g.Go(func() error {
		err := eventListener.Start(gctx, eventSubscriber)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Try to become leader
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			became, err := leaderElection.BecomeLeader(gctx, cfg.Instance.ID)
			if err != nil {
				log.Error("Failed to attempt leadership", "error", err)
			} else if became {
				log.Info("Became sweeper leader", "instance_id", cfg.Instance.ID)
			}

			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		log.Info("Starting admin server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down settlement worker...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := leaderElection.ReleaseLeadership(shutdownCtx, cfg.Instance.ID); err != nil {
			log.Error("Failed to release leadership", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Settlement worker stopped")
	return nil
}

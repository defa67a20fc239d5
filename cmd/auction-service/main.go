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
	"waste-auction/internal/app"
	"waste-auction/internal/config"
	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Auction service failed", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

// run returns only after the deferred closes have flushed pending events.
func run(cfg *config.Config, log logger.Logger) error {
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	infra, err := app.NewInfra(context.Background(), cfg, false, log)
	if err != nil {
		return fmt.Errorf("initialize infrastructure: %w", err)
	}
	defer infra.Close()

	engine := app.NewEngine(cfg, infra, domain.SystemClock{}, log)
	defer engine.Close()

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}"}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			handlers.UserIDHeader,
		},
		MaxAge: 86400,
	}))

	listingHandler := handlers.NewListingHandler(engine.Manager, engine.Bids, engine.Settlement, log)
	listingHandler.Register(e.Group("/api/v1"))

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-service",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Server.Port,
		})
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting auction server", "address", serverAddr)

	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a failed listener
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var startErr error
	select {
	case <-quit:
		log.Info("Shutting down auction service...")
	case startErr = <-serverErr:
		log.Error("Server failed to start", "error", startErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Auction service stopped")
	return startErr
}

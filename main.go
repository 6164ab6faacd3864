package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"market-engine/src/config"
	"market-engine/src/handlers"
	"market-engine/src/logger"
	"market-engine/src/routes"
	"market-engine/src/settlement"
	"market-engine/src/store"
	"market-engine/src/store/memory"
	"market-engine/src/store/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(cfg.Log)
	log := logger.GetLogger()

	log.Info().
		Str("config", *configPath).
		Str("store", cfg.Store.Driver).
		Msg("Initializing Market Engine")

	st, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store.Driver).Msg("Failed to open store")
	}

	svc := settlement.NewService(st, settlement.Config{
		CandidateLimit:    cfg.Engine.CandidateLimit,
		SettleConcurrency: cfg.Engine.SettleConcurrency,
	})
	orderHandler := handlers.NewOrderHandler(svc, cfg.Orderbook, cfg.Metrics)
	adminHandler := handlers.NewAdminHandler(svc, cfg.Server.AdminToken, orderHandler)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, cfg.Server, orderHandler, adminHandler)

	port := fmt.Sprintf(":%d", cfg.Server.Port)

	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			// edge case: ignore shutdown errors, only report real errors
			errStr := err.Error()
			if errStr != "server is shutting down" {
				serverError <- err
			}
		}
	}()

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", port).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run main.go").
			Msg("Server failed to start")
	case <-time.After(100 * time.Millisecond):
		log.Info().
			Str("port", port).
			Msg("Market Engine started")

		log.Info().
			Strs("endpoints", routes.Endpoints()).
			Msg("API endpoints registered")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info().Msg("Received shutdown signal, shutting down...")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", shutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	} else {
		log.Info().Msg("Shutdown complete")
	}

	st.Close()
	logger.CloseLogger()
}

// openStore builds the configured store. The memory store is seeded from the
// config; a postgres database is expected to be populated already.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	policy := store.RetryPolicy{
		MaxRetries:      uint64(cfg.Engine.MaxRetries),
		InitialInterval: cfg.Engine.RetryInitialInterval,
		MaxInterval:     cfg.Engine.RetryMaxInterval,
	}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Postgres.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return postgres.New(pool, policy), nil
	default:
		st := memory.New(policy)
		markets, users := cfg.Seed.Build(time.Now().UnixMilli())
		if err := st.Seed(ctx, markets, users); err != nil {
			return nil, fmt.Errorf("seed memory store: %w", err)
		}
		return st, nil
	}
}

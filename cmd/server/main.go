package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dudgeon/penguin-bank-cloud/internal/config"
	"github.com/dudgeon/penguin-bank-cloud/internal/domain"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/logging"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/memory"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/metrics"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/postgres"
	"github.com/dudgeon/penguin-bank-cloud/internal/infrastructure/server"
	"github.com/dudgeon/penguin-bank-cloud/internal/usecases/banking"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level: logging.LogLevel(cfg.LogLevel),
		InitialFields: logging.Fields{
			"service": cfg.ServerName,
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutting down")
		cancel()
	}()

	var store domain.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
		logger.Info("Connected to PostgreSQL")
	} else {
		store = memory.NewSeededStore(cfg.DemoUserID)
		logger.Info("No database configured, using seeded in-memory store")
	}

	clock := clockwork.NewRealClock()
	collector := metrics.NewCollector(clock)
	sessions := server.NewSessionRegistry(cfg.SessionCapacity, clock)
	tools := banking.NewService(store, cfg.DemoUserID, logger)

	dispatcher := server.NewDispatcher(server.DispatcherConfig{
		ServerName:    cfg.ServerName,
		ServerVersion: cfg.ServerVersion,
		Tools:         tools,
		Metrics:       collector,
		Logger:        logger,
		Clock:         clock,
	})

	srv := server.NewHTTPServer(server.HTTPServerConfig{
		Addr:           cfg.Addr,
		Dispatcher:     dispatcher,
		Sessions:       sessions,
		Metrics:        collector,
		Logger:         logger,
		Clock:          clock,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

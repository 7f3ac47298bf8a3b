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

	app "github.com/roastrush/game-server/internal/app"
	"github.com/roastrush/game-server/internal/app/httpapi"
	"github.com/roastrush/game-server/internal/app/services/oracle"
	"github.com/roastrush/game-server/internal/app/storage"
	"github.com/roastrush/game-server/internal/app/storage/postgres"
	"github.com/roastrush/game-server/internal/chain"
	"github.com/roastrush/game-server/internal/config"
	"github.com/roastrush/game-server/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "game-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Name:   "game-server",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var players storage.PlayerStore
	if cfg.DatabaseDSN != "" {
		players, err = postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		log.Info("using postgres player store")
	} else {
		log.Warn("DATABASE_DSN not set; using in-memory player store")
	}

	chainClient, err := chain.NewRPCClient(chain.Config{
		RPCURL:  cfg.Chain.RPCURL,
		Timeout: cfg.Chain.Timeout,
	})
	if err != nil {
		return fmt.Errorf("configure chain client: %w", err)
	}

	fetcher, err := oracle.NewHTTPFetcher(
		&http.Client{Timeout: 10 * time.Second},
		cfg.Oracle.URL,
		cfg.Oracle.RatePath,
		log.Named("oracle-fetcher"),
	)
	if err != nil {
		return fmt.Errorf("configure oracle fetcher: %w", err)
	}

	application, err := app.New(app.Dependencies{
		Players:     players,
		Chain:       chainClient,
		RateFetcher: fetcher,
		JWTSecret:   []byte(cfg.JWTSecret),
		Treasury:    cfg.Treasury,
		Season:      cfg.Season,
	}, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpapi.NewHandler(application, log.Named("httpapi")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	return application.Stop(shutdownCtx)
}

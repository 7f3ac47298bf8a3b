// Package app composes the storage layer, domain services and background
// pollers into a running application. Business rules live in the service
// packages; this package only wires them together.
package app

import (
	"context"
	"fmt"

	"github.com/roastrush/game-server/internal/app/services/auth"
	"github.com/roastrush/game-server/internal/app/services/economy"
	"github.com/roastrush/game-server/internal/app/services/leaderboard"
	"github.com/roastrush/game-server/internal/app/services/oracle"
	"github.com/roastrush/game-server/internal/app/services/payments"
	"github.com/roastrush/game-server/internal/app/storage"
	"github.com/roastrush/game-server/internal/app/storage/memory"
	"github.com/roastrush/game-server/internal/app/system"
	"github.com/roastrush/game-server/internal/chain"
	"github.com/roastrush/game-server/pkg/logger"
)

// Dependencies carries the external collaborators and secrets the services
// need. A nil Players store defaults to the in-memory implementation.
type Dependencies struct {
	Players     storage.PlayerStore
	Chain       chain.Client
	RateFetcher oracle.RateFetcher
	JWTSecret   []byte
	Treasury    string
	Season      string
}

// Application ties the domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Players     storage.PlayerStore
	Auth        *auth.Service
	Payments    *payments.Service
	Economy     *economy.Service
	Leaderboard *leaderboard.Service
	Season      string
}

// New builds a fully initialised application.
func New(deps Dependencies, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if deps.Players == nil {
		deps.Players = memory.New()
	}
	if deps.Chain == nil {
		return nil, fmt.Errorf("chain client required")
	}
	if deps.Season == "" {
		deps.Season = "global"
	}

	authService, err := auth.New(deps.Players, deps.JWTSecret, log.Named("auth"))
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}

	oracleClient := oracle.New(deps.RateFetcher, log.Named("oracle"))
	journal := payments.NewJournal()
	paymentsService, err := payments.New(oracleClient, deps.Chain, deps.Treasury, journal, log.Named("payments"))
	if err != nil {
		return nil, fmt.Errorf("configure payments: %w", err)
	}

	economyService := economy.New(deps.Players, log.Named("economy"))
	leaderboardService := leaderboard.New(deps.Players, log.Named("leaderboard"))

	manager := system.NewManager()
	if err := manager.Register(payments.NewReconcilePoller(journal, log.Named("payments-reconcile"))); err != nil {
		return nil, fmt.Errorf("register reconcile poller: %w", err)
	}

	return &Application{
		manager:     manager,
		log:         log,
		Players:     deps.Players,
		Auth:        authService,
		Payments:    paymentsService,
		Economy:     economyService,
		Leaderboard: leaderboardService,
		Season:      deps.Season,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops background services and closes the store.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if cerr := a.Players.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

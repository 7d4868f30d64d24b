package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/spendlens/internal/challenge"
	"github.com/Veraticus/spendlens/internal/classification"
	"github.com/Veraticus/spendlens/internal/clock"
	"github.com/Veraticus/spendlens/internal/config"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/pattern"
	"github.com/Veraticus/spendlens/internal/provider"
	"github.com/Veraticus/spendlens/internal/storage"
)

// app holds the collaborators one command works with. They are built once
// per invocation and passed explicitly.
type app struct {
	cfg          *config.Config
	store        *storage.SQLStorage
	classifier   *classification.Service
	orchestrator *challenge.Orchestrator
	detector     *pattern.Detector
	clock        clock.Clock
	location     *time.Location
	userID       string
}

// openApp opens and migrates storage and wires the services.
func (s *rootState) openApp(ctx context.Context) (*app, error) {
	loc, err := s.cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, s.cfg.StorageConfig())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &app{
		cfg:        s.cfg,
		store:      store,
		classifier: classification.NewService(store),
		orchestrator: challenge.NewOrchestrator(store,
			challenge.WithClock(s.clock),
			challenge.WithLocation(loc),
			challenge.WithBudgetPolicy(challenge.NewStorageBudgets(store, challenge.DefaultBudgets())),
		),
		detector: pattern.NewDetector(pattern.WithClock(s.clock), pattern.WithLocation(loc)),
		clock:    s.clock,
		location: loc,
		userID:   s.cfg.User.ID,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// connection registers (or finds) the user's connection for a provider account.
func (a *app) connection(ctx context.Context, providerName, accountID, name string) (*model.Connection, error) {
	conn := &model.Connection{
		UserID:    a.userID,
		Provider:  providerName,
		AccountID: accountID,
		Name:      name,
	}
	if err := a.store.SaveConnection(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// syncService wires a fetcher into the categorize, store and challenge pipeline.
func (a *app) syncService(fetcher provider.TransactionFetcher) *provider.SyncService {
	return provider.NewSyncService(fetcher, a.store, a.classifier, a.orchestrator, a.clock)
}

package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/alerts"
	"github.com/sudo-init-do/skillmarket/internal/config"
	"github.com/sudo-init-do/skillmarket/internal/db"
	"github.com/sudo-init-do/skillmarket/internal/marketplace"
	"github.com/sudo-init-do/skillmarket/internal/messaging"
	"github.com/sudo-init-do/skillmarket/internal/user"
)

type stores struct {
	pool          *pgxpool.Pool
	listings      marketplace.Store
	profiles      user.Store
	messages      messaging.Store
	notifications alerts.Store
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory stores; state is lost on restart")
		return &stores{
			listings:      marketplace.NewMemoryStore(),
			profiles:      user.NewMemoryStore(),
			messages:      messaging.NewMemoryStore(),
			notifications: alerts.NewMemoryStore(),
		}, nil
	}

	dsn := cfg.PostgresConfig.DSN()
	if cfg.AutoMigrate {
		if err := db.MigrateUp(dsn, logger); err != nil {
			return nil, fmt.Errorf("openStores: %w", err)
		}
	}
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("openStores: %w", err)
	}
	logger.Info("connected to postgres", zap.String("host", cfg.PostgresConfig.Host), zap.String("db", cfg.PostgresConfig.Name))
	return &stores{
		pool:          pool,
		listings:      db.NewListingStore(pool),
		profiles:      db.NewProfileStore(pool),
		messages:      db.NewMessageStore(pool),
		notifications: db.NewNotificationStore(pool),
	}, nil
}

func (s *stores) ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

func (s *stores) close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

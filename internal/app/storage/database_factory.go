package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadengine/instance-sync/internal/app/storage/auth"
	"github.com/leadengine/instance-sync/internal/config"
	"github.com/leadengine/instance-sync/internal/logger"
	"github.com/leadengine/instance-sync/internal/storage"
)

const (
	defaultMaxConns        = 10
	defaultConnMaxLifetime = 30 * time.Minute
)

// NewDatabaseFactory connects a pgx pool to the configured PostgreSQL database
func NewDatabaseFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for postgres storage")
	}

	poolConfig, err := buildPoolConfig(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	logger.Infow("Database connection pool created",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database,
		"max_conns", poolConfig.MaxConns)
	return &storeFactory{kind: storage.TypePostgres, store: storage.NewPostgresStore(pool)}, nil
}

// buildPoolConfig parses the connection string and applies pool sizing and dynamic auth
func buildPoolConfig(ctx context.Context, db *config.DatabaseConfig) (*pgxpool.Config, error) {
	connStr, err := db.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConns
	if db.MaxOpenConns > 0 {
		poolConfig.MaxConns = db.MaxOpenConns
	}
	if db.MaxIdleConns > 0 {
		poolConfig.MinConns = min(db.MaxIdleConns, poolConfig.MaxConns)
	}
	poolConfig.MaxConnLifetime = defaultConnMaxLifetime
	if db.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(db.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = lifetime
	}

	beforeConnect, err := auth.BeforeConnect(ctx, db, db.User)
	if err != nil {
		return nil, fmt.Errorf("failed to configure dynamic auth: %w", err)
	}
	if beforeConnect != nil {
		poolConfig.BeforeConnect = beforeConnect
		// Tokens expire after 15 minutes; recycle connections before that
		poolConfig.MaxConnLifetime = min(poolConfig.MaxConnLifetime, 14*time.Minute)
	}

	return poolConfig, nil
}

// Package storage builds the shared database connection pool and runs the
// schema migrations every other persistence-backed package depends on.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps the shared connection pool. The Delivery Vault and Client
// Manager both take the same *Pool; their operations are not serialized
// and may run concurrently on different pooled connections.
type Pool struct {
	*pgxpool.Pool
}

// New parses url, applies a bounded-pool configuration, and pings before
// returning so a misconfigured DATABASE_URL fails fast at boot.
func New(ctx context.Context, url string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("storage: parse config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = 55 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// migrations are the tables this process depends on, run in order.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		username TEXT,
		is_user BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS delivery_vault (
		id TEXT PRIMARY KEY,
		link TEXT NOT NULL,
		media_href TEXT NOT NULL,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		ups INT NOT NULL DEFAULT 0,
		downs INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS subscribed_listings (
		user_id BIGINT NOT NULL REFERENCES users(id),
		community_name TEXT NOT NULL,
		category_tag TEXT NOT NULL,
		head_item_id TEXT REFERENCES delivery_vault(id),
		PRIMARY KEY (user_id, community_name, category_tag)
	)`,
}

// Migrate runs every migration in order. Safe to call on every boot; each
// statement is idempotent (IF NOT EXISTS).
func Migrate(ctx context.Context, pool *Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("storage: migration %d: %w", i+1, err)
		}
	}
	return nil
}

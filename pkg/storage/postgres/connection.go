// Package postgres manages the service's PostgreSQL connections: a standard
// pool whose role is subject to row-level security, and an optional elevated
// pool whose role bypasses it. The elevated pool is exposed only through the
// Elevated gateway so every policy-bypassing call site is explicit.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	StandardURL string
	ElevatedURL string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

// ConnectionManager holds both credential-mode pools.
type ConnectionManager struct {
	standard *sql.DB
	elevated *Elevated
}

// NewConnectionManager opens and verifies the standard pool and, when an
// elevated DSN is configured, the elevated pool. A missing elevated DSN is
// not an error at construction time; elevated operations will fail with
// ErrElevatedNotConfigured when attempted.
func NewConnectionManager(config ConnectionConfig) (*ConnectionManager, error) {
	if config.StandardURL == "" {
		return nil, fmt.Errorf("standard database URL is required")
	}

	standard, err := openPool(config, config.StandardURL)
	if err != nil {
		return nil, fmt.Errorf("standard pool: %w", err)
	}

	cm := &ConnectionManager{standard: standard, elevated: &Elevated{}}

	if config.ElevatedURL != "" {
		elevatedDB, err := openPool(config, config.ElevatedURL)
		if err != nil {
			standard.Close()
			return nil, fmt.Errorf("elevated pool: %w", err)
		}
		cm.elevated = &Elevated{db: elevatedDB}
	}

	return cm, nil
}

func openPool(config ConnectionConfig, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	timeout := config.PingTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Standard returns the policy-filtered pool
func (cm *ConnectionManager) Standard() *sql.DB {
	return cm.standard
}

// Elevated returns the elevated gateway; never nil, but may be unconfigured
func (cm *ConnectionManager) Elevated() *Elevated {
	return cm.elevated
}

// Close closes all pools
func (cm *ConnectionManager) Close() error {
	var firstErr error
	if err := cm.standard.Close(); err != nil {
		firstErr = err
	}
	if cm.elevated != nil && cm.elevated.db != nil {
		if err := cm.elevated.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

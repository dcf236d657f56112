package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"saleschat/pkg/config"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func NewPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
	)

	return pool, nil
}

const (
	transientRetryLimit = 5
	transientRetryDelay = 150 * time.Millisecond
)

// IsTransient reports whether err looks like a short-lived resource problem
// (pool/connection exhaustion) worth retrying. Everything else propagates
// immediately.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 53: insufficient resources (too_many_connections and friends).
		// 57P03: cannot_connect_now.
		return strings.HasPrefix(pgErr.Code, "53") || pgErr.Code == "57P03"
	}
	return false
}

// WithRetry runs op, retrying transient storage errors up to a fixed bound
// with a short fixed delay. A non-transient error returns immediately; an
// exhausted retry budget surfaces as a terminal error.
func WithRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= transientRetryLimit; attempt++ {
		err = op(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(transientRetryDelay):
		}
	}
	return fmt.Errorf("storage unavailable after %d attempts: %w", transientRetryLimit, err)
}

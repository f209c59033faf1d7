package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/evelynmon/wabot/core/config"
	"github.com/evelynmon/wabot/core/logger"
)

const connectTimeout = 5 * time.Second

// Connect opens the database connection, configures the pool, and verifies connectivity.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", DSN(cfg))
	took := time.Since(start)
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("status", "fail"),
			slog.String("host", cfg.Host),
			slog.String("port", cfg.Port),
			slog.String("db", cfg.Name),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		logger.DB.Error("db ping failed",
			slog.String("event", "db.ping"),
			slog.String("status", "fail"),
			slog.String("host", cfg.Host),
			slog.String("db", cfg.Name),
			slog.String("err", pingErr.Error()),
		)
		return nil, fmt.Errorf("db ping: %w", pingErr)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("status", "ok"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("count", cfg.MaxConnections),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return db, nil
}

// WaitForPostgres polls the server until it answers a ping, the timeout passes, or ctx ends.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastErr error
	for {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		case <-ticker.C:
		}
	}
}

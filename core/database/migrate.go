package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/evelynmon/wabot/core/config"
	"github.com/evelynmon/wabot/core/logger"
)

const readyTimeout = 30 * time.Second

// RunMigrations applies all up migrations from cfg.MigrationsDir.
func RunMigrations(ctx context.Context, cfg config.DatabaseConfig) error {
	dsn := DSN(cfg)
	if err := WaitForPostgres(ctx, dsn, readyTimeout); err != nil {
		logger.MIG.Error("db not ready",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("database not ready: %w", err)
	}

	migrationsPath, err := resolveDir(cfg.MigrationsDir)
	if err != nil {
		logger.MIG.Error("migrations dir lookup failed",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return err
	}
	sourceURL := "file://" + filepath.ToSlash(migrationsPath)

	files := listMigrationFiles(migrationsPath)
	args := []any{
		slog.String("event", "resolve"),
		slog.String("path", migrationsPath),
		slog.Int("files_total", len(files)),
	}
	if preview := logger.Preview(files, 6); preview != "" {
		args = append(args, slog.String("files_preview", preview))
	}
	logger.MIG.Debug("migrations resolved", args...)

	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		logger.MIG.Error("init failed",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	defer func() { _, _ = m.Close() }()

	fromVer, dirty, _ := m.Version()
	if dirty {
		logger.MIG.Warn("schema is dirty",
			slog.String("event", "db.migrate"),
			slog.Uint64("from_ver", uint64(fromVer)),
		)
	}

	start := time.Now()
	upErr := m.Up()
	took := time.Since(start)

	switch {
	case upErr == nil:
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.MIG.Info("migrations summary",
			slog.String("event", "summary"),
			slog.Uint64("from_ver", uint64(fromVer)),
			slog.Uint64("to_ver", uint64(fromVer)),
			slog.Int("files", 0),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return nil
	default:
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := m.Version()
	applied := countApplied(files, uint64(fromVer), uint64(toVer))

	if applied > 0 {
		appliedNames := selectApplied(files, uint64(fromVer), uint64(toVer))
		args := []any{
			slog.String("event", "apply"),
			slog.Int("files_total", len(appliedNames)),
		}
		if preview := logger.Preview(appliedNames, 6); preview != "" {
			args = append(args, slog.String("files_preview", preview))
		}
		logger.MIG.Debug("applied files", args...)
	}

	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", applied),
		slog.Duration("duration", logger.RoundMS(took)),
	)

	return nil
}

func resolveDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "migrations"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("migrations dir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("migrations dir %q is not a directory", abs)
	}
	return abs, nil
}

func listMigrationFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".up.sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) == 0 {
		return 0
	}
	v, _ := strconv.ParseUint(parts[0], 10, 64)
	return v
}

func countApplied(files []string, from, to uint64) int {
	if to <= from {
		return 0
	}
	c := 0
	for _, f := range files {
		v := parseVersion(f)
		if v > from && v <= to {
			c++
		}
	}
	return c
}

func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		v := parseVersion(f)
		if v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}

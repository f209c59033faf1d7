package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/evelynmon/wabot/core/bootstrap"
	coreconfig "github.com/evelynmon/wabot/core/config"
	"github.com/evelynmon/wabot/core/logger"
	"github.com/evelynmon/wabot/core/server"
)

// Options describe how to load configuration, bootstrap the app, and serve it.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string
	// EnvFiles are loaded before configuration; missing files are ignored.
	EnvFiles []string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)

	ShutdownLogger func() error
	Serve          func(ctx context.Context, opts server.RunOptions) error
}

// Run loads configuration, bootstraps the bot, and serves the webhook until a signal arrives.
func Run(opts Options) error {
	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cmd: load %s: %w", f, err)
		}
	}

	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = coreconfig.Load
	}
	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}

	log.Printf("loading config: %q", cfgPath)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	app, err := boot(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	serve := opts.Serve
	if serve == nil {
		serve = server.Run
	}

	runErr := serve(ctx, server.RunOptions{
		Addr:       cfg.Addr(),
		Handler:    app.Handler,
		Dispatcher: app.Dispatcher,
		OnStart: func(ctx context.Context, rt server.Runtime) error {
			logger.Info(ctx, "app", "ready",
				slog.String("listen", rt.Addr),
				slog.String("store", cfg.Store.Backend),
				slog.Int64("duration_ms", logger.SinceMS(startedAt)),
			)
			return nil
		},
		OnStop: func(ctx context.Context, _ server.Runtime) error {
			logger.Info(ctx, "app", "shutdown")
			return nil
		},
	})

	return errors.Join(runErr, app.Close())
}

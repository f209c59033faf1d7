package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evelynmon/wabot/core/bootstrap"
	coreconfig "github.com/evelynmon/wabot/core/config"
	"github.com/evelynmon/wabot/core/server"
)

func TestRunLoadsEnvAndServes(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("WABOT_RUNNER_TEST=from-dotenv\n"), 0o600))
	t.Setenv("WABOT_RUNNER_TEST", "")
	require.NoError(t, os.Unsetenv("WABOT_RUNNER_TEST"))
	t.Setenv("WABOT_CONFIG", "custom.yaml")

	var (
		loadedPath string
		served     server.RunOptions
		loggerDone bool
	)
	err := Run(Options{
		ConfigEnvVar: "WABOT_CONFIG",
		EnvFiles:     []string{envFile, filepath.Join(dir, "missing.env")},
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			loadedPath = path
			return &coreconfig.Config{HTTP: coreconfig.HTTPConfig{Listen: "127.0.0.1", Port: 5000}}, nil
		},
		Bootstrap: func(context.Context, bootstrap.Options) (*bootstrap.Result, error) {
			return &bootstrap.Result{Handler: http.NotFoundHandler()}, nil
		},
		ShutdownLogger: func() error {
			loggerDone = true
			return nil
		},
		Serve: func(ctx context.Context, opts server.RunOptions) error {
			served = opts
			require.NoError(t, opts.OnStart(ctx, server.Runtime{Addr: opts.Addr}))
			return opts.OnStop(ctx, server.Runtime{Addr: opts.Addr})
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", os.Getenv("WABOT_RUNNER_TEST"))
	assert.Equal(t, "custom.yaml", loadedPath)
	assert.NotNil(t, served.Handler)
	assert.True(t, loggerDone)
}

func TestRunStopsOnConfigError(t *testing.T) {
	boom := errors.New("bad config")
	booted := false
	err := Run(Options{
		EnvFiles:   []string{filepath.Join(t.TempDir(), "none.env")},
		LoadConfig: func(string) (*coreconfig.Config, error) { return nil, boom },
		Bootstrap: func(context.Context, bootstrap.Options) (*bootstrap.Result, error) {
			booted = true
			return nil, nil
		},
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, booted)
}

package logger

import (
	"log/slog"
	"path/filepath"
	"testing"

	coreconfig "github.com/evelynmon/wabot/core/config"
)

func TestResolveOptionsDefaults(t *testing.T) {
	opts := resolveOptions(coreconfig.LoggingConfig{})
	if opts.format != formatJSON || opts.level != slog.LevelInfo || opts.profile != "prod" {
		t.Fatalf("unexpected defaults %+v", opts)
	}
	if opts.sample != defaultDebugRatio || opts.file != "" {
		t.Fatalf("unexpected defaults %+v", opts)
	}
}

func TestResolveOptionsFromConfig(t *testing.T) {
	opts := resolveOptions(coreconfig.LoggingConfig{
		Level:       "WARNING",
		KeysOrder:   "event, sender,,rid",
		DebugSample: "all",
		Dir:         "logs",
		File:        "wabot.log",
		Profile:     "Dev",
	})
	if opts.format != formatKV {
		t.Fatalf("dev profile should default to kv, got %s", opts.format)
	}
	if opts.level != slog.LevelWarn {
		t.Fatalf("level = %v", opts.level)
	}
	if len(opts.order) != 3 || opts.order[0] != "event" || opts.order[2] != "rid" {
		t.Fatalf("order = %v", opts.order)
	}
	if opts.sample != nil {
		t.Fatalf("sample = %+v", opts.sample)
	}
	if opts.file != filepath.Join("logs", "wabot.log") {
		t.Fatalf("file = %q", opts.file)
	}
}

func TestResolveOptionsExplicitFormatWins(t *testing.T) {
	opts := resolveOptions(coreconfig.LoggingConfig{Format: "json", Profile: "debug", Level: "chatty"})
	if opts.format != formatJSON {
		t.Fatalf("format = %s", opts.format)
	}
	if opts.level != slog.LevelInfo {
		t.Fatalf("unknown level should fall back to info, got %v", opts.level)
	}
}

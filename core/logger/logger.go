package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/evelynmon/wabot/core/buildinfo"
	coreconfig "github.com/evelynmon/wabot/core/config"
)

var (
	stateMu  sync.Mutex
	out      *lineWriter
	logFiles []io.Closer
	stopped  bool

	levelVar     slog.LevelVar
	debugSampler sampler

	componentsMu sync.RWMutex
	components   map[string]*slog.Logger

	// L is the base logger; nil until InitLogger runs.
	L *slog.Logger

	// DB logs database connection events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// HTTP logs webhook transport events.
	HTTP *slog.Logger
	// Bot logs conversation flow events.
	Bot *slog.Logger
	// Send logs outbound Messaging API calls.
	Send *slog.Logger
)

// options is the resolved form of the logging section of the config.
type options struct {
	format  logFormat
	level   slog.Level
	order   []string
	sample  *ratio
	file    string
	profile string
}

// InitLogger configures the global structured logger. Calls after the first
// successful one are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	stateMu.Lock()
	defer stateMu.Unlock()
	if L != nil {
		return nil
	}
	if cfg == nil {
		cfg = &coreconfig.Config{}
	}
	opts := resolveOptions(cfg.Logging)

	sinks := []io.Writer{os.Stdout}
	if opts.file != "" {
		f, err := openLogFile(opts.file)
		if err != nil {
			return err
		}
		sinks = append(sinks, f)
		logFiles = append(logFiles, f)
	}

	levelVar.Set(opts.level)
	debugSampler.set(opts.sample)
	if traceRequested() {
		debugSampler.set(nil)
	}

	out = newLineWriter(sinks, 256)
	L = slog.New(newStructuredHandler(handlerConfig{
		level:  &levelVar,
		out:    out,
		format: opts.format,
		ranks:  keyRanks(opts.order),
	}))
	slog.SetDefault(L)

	componentsMu.Lock()
	components = make(map[string]*slog.Logger)
	componentsMu.Unlock()
	DB = Component("db")
	MIG = Component("db.migrate")
	HTTP = Component("http")
	Bot = Component("bot")
	Send = Component("twilio.send")

	L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
		slog.String("component", "app"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", opts.profile),
		slog.String("log_format", string(opts.format)),
		slog.String("bot", cfg.Bot.Name),
		slog.String("store", cfg.Store.Backend),
	)
	return nil
}

func resolveOptions(c coreconfig.LoggingConfig) options {
	opts := options{
		format:  formatJSON,
		level:   slog.LevelInfo,
		order:   defaultKeyOrder,
		sample:  parseSampleRatio(c.DebugSample),
		profile: strings.ToLower(strings.TrimSpace(c.Profile)),
	}
	if opts.profile == "" {
		opts.profile = "prod"
	}

	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "kv", "text", "pretty":
		opts.format = formatKV
	case "json":
	default:
		if opts.profile == "debug" || opts.profile == "dev" {
			opts.format = formatKV
		}
	}

	raw := strings.TrimSpace(c.Level)
	if strings.EqualFold(raw, "warning") {
		raw = "warn"
	}
	var lvl slog.Level
	if raw != "" && lvl.UnmarshalText([]byte(raw)) == nil {
		opts.level = lvl
	}

	if keys := splitKeys(c.KeysOrder); len(keys) > 0 {
		opts.order = keys
	}

	if file := strings.TrimSpace(c.File); file != "" {
		opts.file = filepath.Join(strings.TrimSpace(c.Dir), file)
	}
	return opts
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logger: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

// TRACE or LOG_TRACE turns debug sampling off.
func traceRequested() bool {
	for _, name := range []string{"TRACE", "LOG_TRACE"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}

// Shutdown writes out queued lines and closes the log file, if any.
func Shutdown() error {
	stateMu.Lock()
	defer stateMu.Unlock()
	if stopped {
		return nil
	}
	stopped = true

	var errs []error
	if out != nil {
		errs = append(errs, out.Close())
	}
	for _, c := range logFiles {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// LogEvent writes an event-keyed record, falling back to the context or global logger.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns the base logger scoped to name. Loggers are cached per
// name; nil before InitLogger.
func Component(name string) *slog.Logger {
	name = strings.TrimSpace(name)
	if L == nil || name == "" {
		return L
	}
	componentsMu.RLock()
	logg, ok := components[name]
	componentsMu.RUnlock()
	if ok {
		return logg
	}
	componentsMu.Lock()
	defer componentsMu.Unlock()
	if logg, ok = components[name]; !ok {
		logg = L.With("component", name)
		components[name] = logg
	}
	return logg
}

// Event logs under component. Before InitLogger it falls back to the logger in ctx.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg != nil && strings.TrimSpace(component) != "" {
			logg = logg.With("component", strings.TrimSpace(component))
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug line should be written.
// The default keeps one in fifty; logging.debug_sample overrides it.
func ShouldSampleDebug() bool {
	return debugSampler.allow()
}

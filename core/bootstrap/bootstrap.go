package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evelynmon/wabot/core/bot"
	coreconfig "github.com/evelynmon/wabot/core/config"
	"github.com/evelynmon/wabot/core/conversation"
	coredatabase "github.com/evelynmon/wabot/core/database"
	"github.com/evelynmon/wabot/core/dispatch"
	"github.com/evelynmon/wabot/core/logger"
	"github.com/evelynmon/wabot/core/server"
	"github.com/evelynmon/wabot/core/session"
	"github.com/evelynmon/wabot/core/twilio"
)

// Options control the bootstrap pipeline. Nil hooks select the production implementations.
type Options struct {
	Config *coreconfig.Config

	LoggerInit    func(*coreconfig.Config) error
	Connect       func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate       func(context.Context, coreconfig.DatabaseConfig) error
	LoadQuestions func(path string) (*conversation.Questions, error)
	// Messenger replaces the Twilio client for outbound follow-ups.
	Messenger dispatch.Messenger
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB         *sqlx.DB
	Store      session.Store
	Service    *bot.Service
	Dispatcher *dispatch.Dispatcher
	Handler    http.Handler
}

// Close releases the database handle, if any. The dispatcher is drained by the server.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, loads the question bank, opens the conversation store
// and wires the bot service behind the HTTP router.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	loadQuestions := opts.LoadQuestions
	if loadQuestions == nil {
		loadQuestions = conversation.LoadQuestions
	}
	questions, err := loadQuestions(cfg.Bot.QuestionsFile)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: question bank: %w", err)
	}
	logger.Info(ctx, "app", "questions.loaded",
		slog.Int("count", questions.Len()),
	)

	res := &Result{}
	store, err := openStore(ctx, cfg, opts, res)
	if err != nil {
		return nil, err
	}
	res.Store = store

	messenger := opts.Messenger
	if messenger == nil {
		messenger = twilio.New(cfg.Twilio, nil)
	}
	res.Dispatcher = dispatch.NewDispatcher(messenger, dispatch.Options{
		QueueSize: cfg.Dispatch.QueueSize,
		Workers:   cfg.Dispatch.Workers,
		Delay:     cfg.FollowUpDelay(),
		Redact:    []string{cfg.Twilio.AuthToken},
	})

	machine := conversation.NewMachine(questions, cfg.Bot.AudioURL)
	res.Service = bot.NewService(store, machine, res.Dispatcher)

	routerOpts := server.RouterOptions{
		Conversations: res.Service,
		BotName:       cfg.Bot.Name,
		RateLimit:     time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
		DebugToken:    cfg.HTTP.DebugToken,
	}
	if cfg.HTTP.ValidateSignature {
		routerOpts.Validator = twilio.NewValidator(cfg.Twilio.AuthToken, cfg.HTTP.PublicURL)
	}
	res.Handler = server.NewRouter(routerOpts)

	return res, nil
}

func openStore(ctx context.Context, cfg *coreconfig.Config, opts Options, res *Result) (session.Store, error) {
	switch cfg.Store.Backend {
	case coreconfig.StorePostgres:
	case coreconfig.StoreMemory, "":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.Store.Backend)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, cfg.Database); err != nil {
		return nil, errors.Join(fmt.Errorf("bootstrap: migrations failed: %w", err), db.Close())
	}

	res.DB = db
	return session.NewPostgresStore(db), nil
}

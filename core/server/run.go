package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evelynmon/wabot/core/dispatch"
	"github.com/evelynmon/wabot/core/logger"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Addr    string
	Handler http.Handler
	// Dispatcher is drained after the listener stops. Optional.
	Dispatcher *dispatch.Dispatcher

	ShutdownTimeout time.Duration

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Addr       string
	Dispatcher *dispatch.Dispatcher
}

// Run serves HTTP until ctx is done, then shuts down gracefully and drains pending follow-ups.
func Run(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Handler == nil {
		return fmt.Errorf("server: nil handler provided")
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", opts.Addr, err)
	}

	srv := &http.Server{
		Handler:           opts.Handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	rt := Runtime{Addr: ln.Addr().String(), Dispatcher: opts.Dispatcher}

	logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "http.listen",
		slog.String("listen", rt.Addr),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			_ = ln.Close()
			closeDispatcher(opts.Dispatcher)
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	closeDispatcher(opts.Dispatcher)

	return errors.Join(runErr, stopErr)
}

func closeDispatcher(d *dispatch.Dispatcher) {
	if d == nil {
		return
	}
	start := time.Now()
	d.Close()
	logger.LogEvent(context.Background(), logger.HTTP, slog.LevelInfo, "dispatch.drained",
		slog.Uint64("failed", d.ErrorCount()),
		slog.Int64("duration_ms", logger.SinceMS(start)),
	)
}

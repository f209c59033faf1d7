package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/evelynmon/wabot/core/conversation"
	"github.com/evelynmon/wabot/core/logger"
	"github.com/evelynmon/wabot/core/metrics"
)

var (
	// ErrQueueClosed is returned when a job is offered after Close.
	ErrQueueClosed = errors.New("dispatch: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("dispatch: queue full")
)

// Messenger delivers outbound messages to a recipient address.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendMedia(ctx context.Context, to, mediaURL string) error
}

// Options controls the behaviour of the follow-up dispatcher.
type Options struct {
	QueueSize int
	Workers   int
	// Delay is the pause before the media message and again before the text message.
	Delay time.Duration
	// Redact lists secrets that must never reach the logs verbatim.
	Redact []string
}

type job struct {
	ctx context.Context
	id  string
	fu  conversation.FollowUp
}

// Dispatcher runs follow-up sequences asynchronously. Sends are attempted once.
type Dispatcher struct {
	opts      Options
	messenger Messenger
	jobs      chan job
	mu        sync.RWMutex
	closed    bool
	once      sync.Once
	wg        sync.WaitGroup
	detached  sync.WaitGroup
	errs      atomic.Uint64
	sleep     func(ctx context.Context, d time.Duration) bool
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(m Messenger, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}

	d := &Dispatcher{
		opts:      opts,
		messenger: m,
		jobs:      make(chan job, opts.QueueSize),
		sleep:     sleepCtx,
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch schedules the follow-up and returns immediately. The job outlives the
// caller's cancellation. A saturated queue falls back to a dedicated goroutine so
// the follow-up is still attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, fu conversation.FollowUp) {
	j := job{
		ctx: context.WithoutCancel(ctx),
		id:  uuid.NewString(),
		fu:  fu,
	}

	switch err := d.enqueue(j); {
	case err == nil:
		metrics.FollowUps.WithLabelValues("queued").Inc()
		logger.Debug(ctx, "dispatch", "follow_up.queued", jobAttrs(j)...)
	case errors.Is(err, ErrQueueFull):
		metrics.FollowUps.WithLabelValues("detached").Inc()
		logger.Warn(ctx, "dispatch", "follow_up.queue_full", jobAttrs(j)...)
		go func() {
			defer d.detached.Done()
			d.handleJob(j)
		}()
	default:
		metrics.FollowUps.WithLabelValues("dropped").Inc()
		logger.Warn(ctx, "dispatch", "follow_up.dropped",
			append(jobAttrs(j), slog.String("status", "dropped"), slog.String("err", err.Error()))...,
		)
	}
}

func (d *Dispatcher) enqueue(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- j:
		return nil
	default:
		// counted before Close can observe closed=true
		d.detached.Add(1)
		return ErrQueueFull
	}
}

// ErrorCount returns the number of failed sends.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for queued and detached jobs to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
		d.detached.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	logger.Debug(ctx, "dispatch", "follow_up.start", jobAttrs(j)...)

	if !d.sleep(ctx, d.opts.Delay) {
		d.fail(ctx, j, "media", ctx.Err(), start)
		return
	}
	if err := d.send(ctx, j, "media"); err != nil {
		d.fail(ctx, j, "media", err, start)
		return
	}

	if !d.sleep(ctx, d.opts.Delay) {
		d.fail(ctx, j, "text", ctx.Err(), start)
		return
	}
	if err := d.send(ctx, j, "text"); err != nil {
		d.fail(ctx, j, "text", err, start)
		return
	}

	metrics.FollowUps.WithLabelValues("ok").Inc()
	logger.Info(ctx, "dispatch", "follow_up.done",
		append(jobAttrs(j),
			slog.String("status", "ok"),
			slog.Int64("elapsed_ms", logger.SinceMS(start)),
		)...,
	)
}

func (d *Dispatcher) send(ctx context.Context, j job, kind string) error {
	start := time.Now()
	var err error
	switch kind {
	case "media":
		err = d.messenger.SendMedia(ctx, j.fu.To, j.fu.MediaURL)
	default:
		err = d.messenger.SendText(ctx, j.fu.To, j.fu.Text)
	}
	metrics.ObserveSend(kind, err, time.Since(start))
	if err == nil {
		logger.Debug(ctx, "dispatch", "send.success",
			append(jobAttrs(j),
				slog.String("action", kind),
				slog.Int64("elapsed_ms", logger.SinceMS(start)),
			)...,
		)
	}
	return err
}

// fail logs the step that broke the sequence. Remaining steps are abandoned.
func (d *Dispatcher) fail(ctx context.Context, j job, kind string, err error, start time.Time) {
	d.errs.Add(1)
	metrics.FollowUps.WithLabelValues("fail").Inc()
	logger.Error(ctx, "dispatch", "send.fail",
		append(jobAttrs(j),
			slog.String("action", kind),
			slog.String("status", "fail"),
			slog.String("err", redact(err, d.opts.Redact)),
			slog.String("err_kind", classifyError(err)),
			slog.Int64("elapsed_ms", logger.SinceMS(start)),
		)...,
	)
}

func jobAttrs(j job) []slog.Attr {
	return []slog.Attr{
		slog.String("job_id", j.id),
		slog.String("to", j.fu.To),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

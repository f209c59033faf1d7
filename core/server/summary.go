package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/evelynmon/wabot/core/logger"
	"github.com/evelynmon/wabot/core/metrics"
)

// AccessLog writes one summary line per request and records its latency.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.RequestDuration.WithLabelValues(route, statusClass(code)).Observe(time.Since(start).Seconds())

		if route == "/metrics" && !logger.ShouldSampleDebug() {
			return
		}
		level := slog.LevelDebug
		if code >= 500 {
			level = slog.LevelError
		}
		logger.LogEvent(r.Context(), logger.HTTP, level, "http.request",
			slog.String("method", r.Method),
			slog.String("path", route),
			slog.Int("http_code", code),
			slog.Int64("duration_ms", logger.SinceMS(start)),
		)
	})
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// logHandlerSummary emits the per-handler outcome line.
func logHandlerSummary(ctx context.Context, handlerName string, start time.Time, outcome string, err error, extras ...slog.Attr) {
	ctx = logger.WithHandler(ctx, handlerName)

	status := "ok"
	if err != nil {
		status = "fail"
	}
	if outcome == "" {
		outcome = status
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", logger.SinceMS(start)),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("cause", handlerName),
		)
	}
	attrs = append(attrs, extras...)

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	logger.LogEvent(ctx, logger.HTTP, level, "handler.handled", attrs...)
}

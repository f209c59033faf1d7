package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/evelynmon/wabot/core/logger"
	"github.com/evelynmon/wabot/core/twilio"
)

// Recover catches panics in handlers and keeps the listener alive.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.LogEvent(r.Context(), logger.HTTP, slog.LevelError, "http.panic",
					slog.String("status", "fail"),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("err", rec),
					slog.String("stack", string(debug.Stack())),
				)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestContext attaches the request id, the sender and a component logger to
// the request context. Webhook form fields are parsed here so later stages can read them.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sender, messageSID string
		if r.Method == http.MethodPost {
			_ = r.ParseForm()
			sender = r.PostForm.Get("From")
			messageSID = r.PostForm.Get("MessageSid")
		}

		rid := messageSID
		if rid == "" {
			rid = chimw.GetReqID(r.Context())
		}
		rid = logger.BuildRID(rid)

		ctx := logger.WithRID(r.Context(), rid)
		ctx = logger.WithMessageMeta(ctx, sender, messageSID)
		ctx = logger.WithLogger(ctx, logger.HTTP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitOptions configures the per-sender rate limit.
type RateLimitOptions struct {
	Interval time.Duration
	// OnLimited writes the response for a dropped message. Nil writes an empty 200.
	OnLimited http.HandlerFunc
}

// RateLimit enforces a minimum interval between messages from the same sender.
// Requests without a sender pass through.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	var (
		lastSeen   = make(map[string]time.Time)
		lastSeenMu sync.Mutex
		lastSweep  time.Time
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sender := logger.SenderFrom(r.Context())
			if sender == "" || opts.Interval <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			lastSeenMu.Lock()
			if now.Sub(lastSweep) > time.Minute {
				for k, ts := range lastSeen {
					if now.Sub(ts) > opts.Interval {
						delete(lastSeen, k)
					}
				}
				lastSweep = now
			}
			if last, ok := lastSeen[sender]; ok && now.Sub(last) < opts.Interval {
				lastSeenMu.Unlock()
				logger.LogEvent(r.Context(), logger.HTTP, slog.LevelWarn, "http.rate_limit",
					slog.String("status", "dropped"),
					slog.Bool("rate_limited", true),
				)
				if opts.OnLimited != nil {
					opts.OnLimited(w, r)
					return
				}
				w.WriteHeader(http.StatusOK)
				return
			}
			lastSeen[sender] = now
			lastSeenMu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

// DebugGuard requires token in the "token" query parameter or X-Debug-Token header.
// An empty token leaves the route open.
func DebugGuard(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Debug-Token")
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logger.LogEvent(r.Context(), logger.HTTP, slog.LevelWarn, "http.debug_denied",
					slog.String("status", "fail"),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SignatureValidator verifies an inbound webhook request.
type SignatureValidator interface {
	Validate(r *http.Request) bool
}

var _ SignatureValidator = (*twilio.Validator)(nil)

// VerifySignature rejects webhook calls without a valid provider signature.
func VerifySignature(v SignatureValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil || !v.Validate(r) {
				logger.LogEvent(r.Context(), logger.HTTP, slog.LevelWarn, "http.signature_invalid",
					slog.String("status", "fail"),
					slog.Bool("signed", strings.TrimSpace(r.Header.Get(twilio.SignatureHeader)) != ""),
				)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

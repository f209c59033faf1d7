package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/evelynmon/wabot/core/metrics"
	"github.com/evelynmon/wabot/core/twilio"
)

// RouterOptions describes the HTTP surface.
type RouterOptions struct {
	Conversations Conversations
	BotName       string
	// Validator enables signature checks on the webhook when set.
	Validator SignatureValidator
	// RateLimit is the minimum interval between messages of one sender; zero disables it.
	RateLimit  time.Duration
	DebugToken string
}

// NewRouter builds the chi router with the shared middleware chain.
func NewRouter(opts RouterOptions) http.Handler {
	h := &handlers{conv: opts.Conversations, botName: opts.BotName}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Recover)
	r.Use(RequestContext)
	r.Use(AccessLog)

	r.Get("/", h.home)
	r.With(DebugGuard(opts.DebugToken)).Get("/debug", h.debug)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.Validator != nil {
			r.Use(VerifySignature(opts.Validator))
		}
		if opts.RateLimit > 0 {
			r.Use(RateLimit(RateLimitOptions{
				Interval:  opts.RateLimit,
				OnLimited: emptyReply,
			}))
		}
		r.Post(webhookPath, h.webhook)
	})

	return r
}

// emptyReply acknowledges a message without answering it.
func emptyReply(w http.ResponseWriter, _ *http.Request) {
	doc, err := twilio.EmptyReply()
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", twilio.ContentType)
	_, _ = w.Write([]byte(doc))
}

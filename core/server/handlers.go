package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/evelynmon/wabot/core/conversation"
	"github.com/evelynmon/wabot/core/logger"
	"github.com/evelynmon/wabot/core/twilio"
)

const (
	// DefaultSender stands in for a missing From field.
	DefaultSender = "test_user"
	// ApologyReply is returned when the conversation could not be advanced.
	ApologyReply = "Desculpe, tivemos um problema por aqui. Tente novamente em instantes 🙏"

	webhookPath = "/bot"
)

// Conversations is the bot service behind the webhook.
type Conversations interface {
	Handle(ctx context.Context, sender, body string) (string, error)
	Snapshot(ctx context.Context) (map[string]conversation.State, error)
}

type handlers struct {
	conv    Conversations
	botName string
}

// webhook answers an inbound message with a TwiML reply. Absent fields fall back
// to defaults; a From that is present but empty is passed through as is. The
// request is never rejected.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	_ = r.ParseForm()

	sender := r.PostForm.Get("From")
	if !r.PostForm.Has("From") {
		sender = DefaultSender
		ctx = logger.WithMessageMeta(ctx, sender, logger.MessageSIDFrom(ctx))
	}
	body := strings.TrimSpace(r.PostForm.Get("Body"))

	logger.LogEvent(ctx, logger.Bot, slog.LevelDebug, "message.received",
		slog.String("answer", logger.SanitizeLimit(body, 256)),
	)

	outcome := "ok"
	reply, err := h.conv.Handle(ctx, sender, body)
	if err != nil {
		reply = ApologyReply
		outcome = "fail"
	}

	doc, renderErr := twilio.RenderReply(reply)
	if renderErr != nil {
		if err == nil {
			err = renderErr
		}
		doc = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	}

	w.Header().Set("Content-Type", twilio.ContentType)
	_, _ = w.Write([]byte(doc))
	logHandlerSummary(ctx, "webhook", start, outcome, err)
}

func (h *handlers) home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<h1>🤖 Bot %s</h1>
<p>Bot está rodando! ✅</p>
<p>Webhook URL: <code>%s</code></p>
<p>Status: Aguardando mensagens do WhatsApp</p>
`, html.EscapeString(h.botName), webhookPath)
}

type debugEntry struct {
	Stage       conversation.Stage `json:"stage"`
	Ordinal     int                `json:"stage_ordinal"`
	Started     bool               `json:"started"`
	DisplayName string             `json:"display_name"`
	Answers     []string           `json:"answers"`
}

// debug renders the store contents. It only reads.
func (h *handlers) debug(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	snap, err := h.conv.Snapshot(ctx)
	if err != nil {
		logHandlerSummary(ctx, "debug", start, "", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	doc, err := renderSnapshot(snap)
	if err != nil {
		logHandlerSummary(ctx, "debug", start, "", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, "<h2>Debug - Conversas ativas:</h2><pre>%s</pre>", html.EscapeString(doc))
	logHandlerSummary(ctx, "debug", start, "", nil, slog.Int("count", len(snap)))
}

func renderSnapshot(snap map[string]conversation.State) (string, error) {
	view := make(map[string]debugEntry, len(snap))
	for s, st := range snap {
		answers := st.Answers
		if answers == nil {
			answers = []string{}
		}
		view[s] = debugEntry{
			Stage:       st.Stage,
			Ordinal:     st.Ordinal(),
			Started:     st.Started(),
			DisplayName: st.DisplayName,
			Answers:     answers,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		return "", fmt.Errorf("server: encode snapshot: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

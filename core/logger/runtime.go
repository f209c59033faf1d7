package logger

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID        contextKey = "rid"
	ctxSender     contextKey = "sender"
	ctxMessageSID contextKey = "message_sid"
	ctxLogger     contextKey = "logger"
	ctxHandler    contextKey = "handler"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if v := ctx.Value(ctxLogger); v != nil {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	return stringValue(ctx, ctxRID)
}

// WithMessageMeta attaches the inbound message identifiers to context.
func WithMessageMeta(ctx context.Context, sender, messageSID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if sender != "" {
		ctx = context.WithValue(ctx, ctxSender, sender)
	}
	if messageSID != "" {
		ctx = context.WithValue(ctx, ctxMessageSID, messageSID)
	}
	return ctx
}

// SenderFrom returns the conversation sender address from context.
func SenderFrom(ctx context.Context) string {
	return stringValue(ctx, ctxSender)
}

// MessageSIDFrom returns the provider message SID from context.
func MessageSIDFrom(ctx context.Context) string {
	return stringValue(ctx, ctxMessageSID)
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	return stringValue(ctx, ctxHandler)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Sanitize trims non-printable runes from s to keep logs clean.
// It removes control characters (Unicode categories Cc, Cf) except for tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// BuildRID returns a correlation identifier for an inbound message.
// The provider message SID is preferred; a random UUID is used when absent.
func BuildRID(messageSID string) string {
	if sid := strings.TrimSpace(messageSID); sid != "" {
		return sid
	}
	return uuid.NewString()
}

// CompactRID shortens provider SIDs ("SM" + 32 hex) and UUIDs to a short prefix.
// Other inputs are returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	switch {
	case rid == "":
		return ""
	case isProviderSID(rid):
		return rid[:10]
	case len(rid) == 36:
		if _, err := uuid.Parse(rid); err == nil {
			return rid[:8]
		}
	}
	return rid
}

func isProviderSID(s string) bool {
	if len(s) != 34 {
		return false
	}
	if !unicode.IsUpper(rune(s[0])) || !unicode.IsUpper(rune(s[1])) {
		return false
	}
	for _, r := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

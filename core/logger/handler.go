package logger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	tsLayout = "2006-01-02T15:04:05.000Z07:00"
)

type field struct {
	key string
	val any
}

// record is one line under construction. Setting a key twice keeps the
// position of the first write and the value of the last.
type record struct {
	fields []field
	index  map[string]int
}

func newRecord(size int) *record {
	return &record{fields: make([]field, 0, size), index: make(map[string]int, size)}
}

func (r *record) set(key string, val any) {
	if i, ok := r.index[key]; ok {
		r.fields[i].val = val
		return
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, field{key: key, val: val})
}

func (r *record) setDefault(key, val string) {
	if _, ok := r.index[key]; ok || val == "" {
		return
	}
	r.set(key, val)
}

func (r *record) str(key string) string {
	i, ok := r.index[key]
	if !ok {
		return ""
	}
	s, _ := r.fields[i].val.(string)
	return s
}

type handlerConfig struct {
	level  slog.Leveler
	out    *lineWriter
	format logFormat
	ranks  map[string]int
}

// structuredHandler writes one flat line per record. Group names become dotted
// key prefixes. Durations are written as whole milliseconds under a *_ms key.
type structuredHandler struct {
	cfg    handlerConfig
	prefix string
	preset []field
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.ranks == nil {
		cfg.ranks = keyRanks(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.out == nil {
		return errors.New("logger: writer not initialized")
	}
	rec := newRecord(len(h.preset) + r.NumAttrs() + 8)
	if !r.Time.IsZero() {
		rec.set("ts", r.Time.UTC().Truncate(time.Millisecond).Format(tsLayout))
	}
	rec.set("level", r.Level.String())
	for _, f := range h.preset {
		rec.set(f.key, f.val)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(rec, h.prefix, a)
		return true
	})
	h.complete(ctx, rec, r.Message)
	return h.cfg.out.WriteLine(h.encode(rec.fields))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	rec := newRecord(len(h.preset) + len(attrs))
	for _, f := range h.preset {
		rec.set(f.key, f.val)
	}
	for _, a := range attrs {
		addAttr(rec, h.prefix, a)
	}
	clone := *h
	clone.preset = rec.fields
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// complete fills in the request correlation fields from ctx and the defaults
// every line carries.
func (h *structuredHandler) complete(ctx context.Context, rec *record, msg string) {
	if ctx != nil {
		rec.setDefault("rid", RIDFrom(ctx))
		rec.setDefault("sender", SenderFrom(ctx))
		rec.setDefault("message_sid", MessageSIDFrom(ctx))
		rec.setDefault("handler", HandlerFrom(ctx))
	}
	if rid := rec.str("rid"); rid != "" {
		if short := CompactRID(rid); short != "" && short != rid {
			if h.cfg.format == formatJSON {
				rec.setDefault("rid_full", rid)
			}
			rec.set("rid", short)
		}
	}
	if rec.str("event") == "" {
		if msg == "" {
			msg = "unknown"
		}
		rec.set("event", msg)
	}
	if rec.str("component") == "" {
		rec.set("component", "app")
	}
	for key := range labelKeys {
		if v := rec.str(key); v != "" {
			rec.set(key, strings.ToLower(v))
		}
	}
}

func (h *structuredHandler) encode(fields []field) []byte {
	ranks := h.cfg.ranks
	slices.SortStableFunc(fields, func(a, b field) int {
		ra, okA := ranks[a.key]
		rb, okB := ranks[b.key]
		switch {
		case okA && okB:
			return cmp.Compare(ra, rb)
		case okA:
			return -1
		case okB:
			return 1
		}
		return strings.Compare(a.key, b.key)
	})

	var buf bytes.Buffer
	if h.cfg.format == formatJSON {
		encodeJSON(&buf, fields)
	} else {
		encodeKV(&buf, fields)
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func addAttr(rec *record, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix = joinKey(prefix, a.Key)
		}
		for _, child := range v.Group() {
			addAttr(rec, prefix, child)
		}
		return
	}
	if a.Key == "" {
		return
	}
	if key, val, ok := normalizeValue(joinKey(prefix, a.Key), v); ok {
		rec.set(key, val)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// normalizeValue reduces v to a string, number or bool. Empty strings and nil
// values are dropped.
func normalizeValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		s := strings.TrimSpace(v.String())
		return key, s, s != ""
	case slog.KindDuration:
		if !strings.HasSuffix(key, "_ms") {
			key += "_ms"
		}
		return key, RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	case slog.KindAny:
		switch x := v.Any().(type) {
		case nil:
			return key, nil, false
		case error:
			return normalizeValue(key, slog.StringValue(x.Error()))
		case fmt.Stringer:
			return normalizeValue(key, slog.StringValue(x.String()))
		default:
			return normalizeValue(key, slog.StringValue(fmt.Sprint(x)))
		}
	default:
		return key, v.Any(), true
	}
}

func encodeJSON(buf *bytes.Buffer, fields []field) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSON(buf, enc, f.key)
		buf.WriteByte(':')
		writeJSON(buf, enc, f.val)
	}
	buf.WriteByte('}')
}

// writeJSON encodes v without the newline json.Encoder appends. Values the
// encoder rejects, such as NaN, are written as strings.
func writeJSON(buf *bytes.Buffer, enc *json.Encoder, v any) {
	if err := enc.Encode(v); err != nil {
		_ = enc.Encode(fmt.Sprint(v))
	}
	buf.Truncate(buf.Len() - 1)
}

func encodeKV(buf *bytes.Buffer, fields []field) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(f.key)
		buf.WriteByte('=')
		s, ok := f.val.(string)
		if !ok {
			s = fmt.Sprint(f.val)
		}
		if strings.IndexFunc(s, needsQuote) >= 0 {
			s = strconv.Quote(s)
		}
		buf.WriteString(s)
	}
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"' || r == 0x7f
}

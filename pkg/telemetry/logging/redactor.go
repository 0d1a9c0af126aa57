package logging

import (
	"context"
	"log/slog"
	"strings"
)

// RedactedValue replaces a sensitive attribute value.
const RedactedValue = "[REDACTED]"

// defaultPHIKeys are attribute keys whose values are masked by default.
// Matching is case-insensitive on the normalized key (dots, dashes and
// underscores stripped).
var defaultPHIKeys = []string{
	"ssn",
	"socialsecuritynumber",
	"dob",
	"dateofbirth",
	"patientname",
	"patientfirstname",
	"patientlastname",
	"memberid",
	"subscriberid",
	"policynumber",
	"mrn",
	"medicalrecordnumber",
	"phone",
	"phonenumber",
	"email",
	"address",
}

// RedactingHandler wraps a slog.Handler and masks the values of sensitive
// attribute keys. Group structure is preserved; only leaf values change.
type RedactingHandler struct {
	inner slog.Handler
	keys  map[string]struct{}
}

// NewRedactingHandler wraps inner with PHI redaction. extraKeys adds to the
// built-in key set.
func NewRedactingHandler(inner slog.Handler, extraKeys []string) *RedactingHandler {
	keys := make(map[string]struct{}, len(defaultPHIKeys)+len(extraKeys))
	for _, k := range defaultPHIKeys {
		keys[k] = struct{}{}
	}
	for _, k := range extraKeys {
		keys[normalizeKey(k)] = struct{}{}
	}
	return &RedactingHandler{inner: inner, keys: keys}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(h.redact(attr))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		redacted[i] = h.redact(attr)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted), keys: h.keys}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), keys: h.keys}
}

func (h *RedactingHandler) redact(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup {
		group := attr.Value.Group()
		redacted := make([]slog.Attr, len(group))
		for i, member := range group {
			redacted[i] = h.redact(member)
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(redacted...)}
	}
	if _, sensitive := h.keys[normalizeKey(attr.Key)]; sensitive {
		return slog.String(attr.Key, RedactedValue)
	}
	return attr
}

func normalizeKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "")
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, ".", "")
	return key
}

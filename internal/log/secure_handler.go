package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	// HTTP
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,

	// API credentials
	"api_key":        true,
	"apikey":         true,
	"api-key":        true,
	"openai_api_key": true,
	"access_token":   true,
	"refresh_token":  true,
	"password":       true,
	"secret":         true,
	"token":          true,

	// Docker registry auth
	"registry_auth": true,
	"registryauth":  true,
	"identitytoken": true,

	// Wallets and deployers
	"private_key": true,
	"privatekey":  true,
	"mnemonic":    true,
	"seed":        true,
}

// sensitiveKeywords mark a key as sensitive when contained anywhere in it.
// The bare word "key" is not listed because it matches harmless keys such
// as "fingerprint_key" or "sort_key".
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth",
	"credential", "private", "mnemonic", "api_key", "apikey",
}

// sensitivePatterns match whole values that are credentials on their own.
var sensitivePatterns = []*regexp.Regexp{
	// JWT
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	// Bearer and basic auth headers
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	// Raw 32-byte hex private keys, with or without 0x
	regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`),
	// PEM private keys
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// inlineSecret matches credentials embedded in longer text such as a
// command line or tool stderr. Only the match itself is masked.
var inlineSecret = regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_-]{16,}|(?i)bearer\s+[A-Za-z0-9._~+/-]{8,}=*`)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SecureHandler wraps an slog.Handler and masks sensitive attributes
// before handing records to it.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled delegates to the underlying handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's message and attributes and passes it on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, RedactInline(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes sanitized and added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitizedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if isSensitiveValue(s) {
			return slog.String(a.Key, MaskValue)
		}
		return slog.String(a.Key, RedactInline(s))
	case slog.KindAny:
		if ss, ok := a.Value.Any().([]string); ok {
			out := make([]string, len(ss))
			for i, s := range ss {
				if isSensitiveValue(s) {
					out[i] = MaskValue
				} else {
					out[i] = RedactInline(s)
				}
			}
			return slog.Any(a.Key, out)
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(k, keyword) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// RedactInline masks API keys and bearer tokens embedded in s.
func RedactInline(s string) string {
	if !strings.Contains(s, "sk-") && !strings.Contains(strings.ToLower(s), "bearer") {
		return s
	}
	return inlineSecret.ReplaceAllString(s, MaskValue)
}

// NewSecureLogger creates a text slog.Logger writing to w.
// verbose selects Debug level; otherwise only warnings and errors are logged.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output. The serve command
// uses it so request logs can be shipped to a collector.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}

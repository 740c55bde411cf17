// Package logger provides structured logging for vos-server and vos-cli.
package logger

import (
	"log/slog"
	"strings"
)

// Attribute names whose values are never logged. Matching is on whole
// underscore or dash separated words so that dkey and akey stay visible.
var sensitiveKeyWords = map[string]struct{}{
	"password":      {},
	"secret":        {},
	"token":         {},
	"credential":    {},
	"credentials":   {},
	"authorization": {},
	"bearer":        {},
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// bearerPrefix marks an Authorization header value.
const bearerPrefix = "Bearer "

// redactSensitive masks the value of a with sensitive content.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s == "" {
			return a
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		if strings.HasPrefix(s, bearerPrefix) {
			return slog.String(a.Key, bearerPrefix+RedactString(s[len(bearerPrefix):]))
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// RedactString masks a secret, keeping the first and last three
// characters of long values as a hint.
func RedactString(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:3] + "..." + value[len(value)-3:]
}

// IsSensitiveKey reports whether an attribute name suggests a secret.
func IsSensitiveKey(key string) bool {
	words := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for _, w := range words {
		if _, ok := sensitiveKeyWords[w]; ok {
			return true
		}
	}
	return false
}

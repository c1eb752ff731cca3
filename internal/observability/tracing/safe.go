package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"email":           {},
	"donor.email":     {},
	"http.user_agent": {},
	"authorization":   {},
}

// SafeAttributes drops attributes that could carry donor PII.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error whose message has email addresses masked.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(maskEmails(err.Error()))
}

func maskEmails(msg string) string {
	fields := strings.Fields(msg)
	changed := false
	for i, f := range fields {
		at := strings.Index(f, "@")
		if at <= 0 || at == len(f)-1 {
			continue
		}
		fields[i] = "***" + f[at:]
		changed = true
	}
	if !changed {
		return msg
	}
	return strings.Join(fields, " ")
}

// Package audit records security-relevant decisions as append-only
// structured events. The core emits exactly one event per authentication or
// authorization outcome; sinks decide where the record lands.
package audit

import (
	"context"
	"strings"
	"time"
)

// SystemActor is used when no authenticated principal is attached to the
// decision, e.g. a failed login for an unknown identifier.
const SystemActor = "system"

// Event is one security decision. Detail must never contain passwords or
// raw token values.
type Event struct {
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Emitter appends events to a sink. Implementations must treat events as
// immutable once emitted.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Normalize fills defaults so sinks can rely on well-formed events.
func (e *Event) Normalize(now func() time.Time) {
	if strings.TrimSpace(e.Actor) == "" {
		e.Actor = SystemActor
	}
	if e.OccurredAt.IsZero() {
		if now == nil {
			now = time.Now
		}
		e.OccurredAt = now().UTC()
	}
}

type ctxKey string

const (
	requestIDKey   ctxKey = "audit_request_id"
	requestPathKey ctxKey = "audit_request_path"
	clientIPKey    ctxKey = "audit_client_ip"
)

// WithRequestID attaches the request identifier enriching every event
// emitted during the request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithRequestPath attaches the request path so authorization denials can be
// traced back to the route that produced them.
func WithRequestPath(ctx context.Context, path string) context.Context {
	path = strings.TrimSpace(path)
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, requestPathKey, path)
}

// WithClientIP attaches the caller's network address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// RequestIDFromContext returns the attached request id, if any.
func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey)
}

// RequestPathFromContext returns the attached request path, if any.
func RequestPathFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestPathKey)
}

// ClientIPFromContext returns the attached client address, if any.
func ClientIPFromContext(ctx context.Context) string {
	return stringFromContext(ctx, clientIPKey)
}

func stringFromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// contextDetail merges request-scoped metadata into the event detail map.
func contextDetail(ctx context.Context, event Event) map[string]any {
	detail := make(map[string]any, len(event.Detail)+3)
	for k, v := range event.Detail {
		detail[k] = v
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		detail["request_id"] = rid
	}
	if path := RequestPathFromContext(ctx); path != "" {
		detail["request_path"] = path
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		detail["client_ip"] = ip
	}
	return detail
}

package services

import "context"

type contextKey string

const (
	identityIDKey contextKey = "identity_id"
	protocolKey   contextKey = "protocol"
	requestIDKey  contextKey = "request_id"
)

// WithIdentityID annotates context with the authenticated identity.
func WithIdentityID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, identityIDKey, id)
}

// IdentityIDFromContext extracts the identity identifier if present.
func IdentityIDFromContext(ctx context.Context) (int64, bool) {
	switch val := ctx.Value(identityIDKey).(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithProtocol annotates context with the verification protocol name.
func WithProtocol(ctx context.Context, protocol string) context.Context {
	if protocol == "" {
		return ctx
	}
	return context.WithValue(ctx, protocolKey, protocol)
}

// ProtocolFromContext returns the protocol name if present.
func ProtocolFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(protocolKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

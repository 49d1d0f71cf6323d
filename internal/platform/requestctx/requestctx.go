package requestctx

import "context"

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	actorIDKey   ctxKey = "actor_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

func GetActorID(ctx context.Context) string {
	if value, ok := ctx.Value(actorIDKey).(string); ok {
		return value
	}
	return ""
}

// LogAttrs returns slog key/value pairs identifying the request.
func LogAttrs(ctx context.Context) []any {
	attrs := make([]any, 0, 4)
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, "requestId", id)
	}
	if actor := GetActorID(ctx); actor != "" {
		attrs = append(attrs, "actorId", actor)
	}
	return attrs
}

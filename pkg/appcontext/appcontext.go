package appcontext

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	ReviewerKey  = ContextKey("X-Reviewer")
	SourceKey    = ContextKey("X-Source")
	BatchIDKey   = ContextKey("X-Batch-Id")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	value, ok := ctx.Value(MethodKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	value, ok := ctx.Value(RouteKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	value, ok := ctx.Value(RemoteIPKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetReviewer records the human operator acting on the review queue.
func SetReviewer(ctx context.Context, reviewer string) context.Context {
	return context.WithValue(ctx, ReviewerKey, reviewer)
}

func GetReviewer(ctx context.Context) string {
	value, ok := ctx.Value(ReviewerKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetSource records which marketplace feed the current work item came from.
func SetSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

func GetSource(ctx context.Context) string {
	value, ok := ctx.Value(SourceKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

func GetBatchID(ctx context.Context) string {
	value, ok := ctx.Value(BatchIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

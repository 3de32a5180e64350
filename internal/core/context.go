package core

import "context"

type cycleIDKey struct{}
type streamKey struct{}

// WithCycleID tags the context with the scheduler cycle it belongs to.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	if ctx == nil || cycleID == "" {
		return ctx
	}
	return context.WithValue(ctx, cycleIDKey{}, cycleID)
}

// WithStream tags the context with the watermark stream being processed
// ("mentions" or "tracked:<username>").
func WithStream(ctx context.Context, stream string) context.Context {
	if ctx == nil || stream == "" {
		return ctx
	}
	return context.WithValue(ctx, streamKey{}, stream)
}

func CycleIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(cycleIDKey{}).(string); ok {
		return v
	}
	return ""
}

func StreamFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(streamKey{}).(string); ok {
		return v
	}
	return ""
}

package http

import "context"

type contextKey string

const seriesIDContextKey contextKey = "series_id"

// ContextWithSeriesID injects the series identifier resolved from the request path.
func ContextWithSeriesID(ctx context.Context, seriesID string) context.Context {
	return context.WithValue(ctx, seriesIDContextKey, seriesID)
}

// SeriesIDFromContext extracts a series identifier previously associated with the context.
func SeriesIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(seriesIDContextKey).(string)
	return id, ok
}

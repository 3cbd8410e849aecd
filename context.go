package goTrust

import "context"

// requestMeta is the request-scoped data audit events carry. It is stored as
// one value so stacking helpers costs a single context layer each.
type requestMeta struct {
	clientIP  string
	userAgent string
	requestID string
}

type requestMetaKey struct{}

func metaFrom(ctx context.Context) requestMeta {
	if ctx == nil {
		return requestMeta{}
	}
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return m
}

func withMeta(ctx context.Context, edit func(*requestMeta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// WithClientIP records the caller's address on ctx for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.clientIP = ip })
}

// WithUserAgent records the HTTP User-Agent on ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.userAgent = userAgent })
}

// WithRequestID records a correlation id so audit events can be joined with
// access logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.requestID = id })
}

// Package logctx decorates slog records with request and stream attributes
// carried in the context, so handlers and engines log once and the wrapper
// fills in the who/where.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps a slog.Handler and appends context-derived attribute groups.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if sd, ok := ctx.Value(streamDataKey{}).(*StreamData); ok {
		r.AddAttrs(slog.Group("stream",
			slog.String("sub", sd.SubscriberID),
			slog.String("transport", sd.Transport),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

// RequestData identifies one inbound HTTP request.
type RequestData struct {
	RequestID  string
	Method     string
	RemoteAddr string
	Path       string
}

// WithRequestData attaches request attributes to the context.
func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

type streamDataKey struct{}

// StreamData identifies one streaming subscriber.
type StreamData struct {
	SubscriberID string
	Transport    string
}

// WithStreamData attaches subscriber attributes to the context.
func WithStreamData(ctx context.Context, sd *StreamData) context.Context {
	return context.WithValue(ctx, streamDataKey{}, sd)
}

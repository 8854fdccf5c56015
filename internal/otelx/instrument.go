package otelx

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpcore/mcpcore/internal/session"
	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// WrapRequestHandler returns h wrapped in a span named "mcp.request <method>"
// (dispatch, and transitively tool invocation when method is "tools/call").
// A nil tracer (the zero Providers) makes this a no-op passthrough, so
// callers that haven't called Setup can still wrap unconditionally.
func WrapRequestHandler(tracer trace.Tracer, method string, h session.RequestHandler) session.RequestHandler {
	if tracer == nil {
		return h
	}
	return func(ctx context.Context, sess *session.Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
		ctx, span := tracer.Start(ctx, "mcp.request "+method, trace.WithAttributes(
			attribute.String("mcp.method", method),
			attribute.String("mcp.session_id", sess.ID()),
		))
		defer span.End()

		result, errObj := h(ctx, sess, params)
		if errObj != nil {
			span.SetStatus(codes.Error, errObj.Message)
			span.SetAttributes(attribute.Int("mcp.error_code", errObj.Code))
		}
		return result, errObj
	}
}

// WrapNotificationHandler is WrapRequestHandler's counterpart for
// one-way notifications (list_changed, cancelled, initialized).
func WrapNotificationHandler(tracer trace.Tracer, method string, h session.NotificationHandler) session.NotificationHandler {
	if tracer == nil {
		return h
	}
	return func(ctx context.Context, sess *session.Session, params json.RawMessage) {
		ctx, span := tracer.Start(ctx, "mcp.notification "+method, trace.WithAttributes(
			attribute.String("mcp.method", method),
			attribute.String("mcp.session_id", sess.ID()),
		))
		defer span.End()
		h(ctx, sess, params)
	}
}

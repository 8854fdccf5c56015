// Package mcpserver implements the server-side service surface: the
// tool/prompt/resource/completion registries of §4.7, wired onto a shared
// session.Router, plus the capability negotiation a session needs from a
// session.Negotiator.
package mcpserver

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"github.com/mcpcore/mcpcore/internal/otelx"
	"github.com/mcpcore/mcpcore/internal/session"
	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// Server composes the four registries behind one Negotiator/Router wiring.
// Construct with New, register tools/prompts/resources/completions,
// then call Wire once before accepting sessions.
type Server struct {
	Tools       *ToolRegistry
	Prompts     *PromptRegistry
	Resources   *ResourceRegistry
	Completions *CompletionRegistry

	info         session.PeerInfo
	instructions string
	registry     *session.Registry
	tracer       trace.Tracer
	toolMetrics  ToolInvocationRecorder
}

// ToolInvocationRecorder is the one method internal/metrics.Metrics needs to
// satisfy to receive a count of every tools/call dispatch; declared here
// rather than imported so this package doesn't have to depend on
// internal/metrics just to name the parameter type.
type ToolInvocationRecorder interface {
	RecordToolInvocation(tool string, isError bool)
}

// SetTracer installs the tracer used to wrap every handler Wire registers in
// a span. Call before Wire; nil (the default) leaves handlers unwrapped.
func (s *Server) SetTracer(t trace.Tracer) { s.tracer = t }

// SetToolMetrics installs the recorder notified of every tools/call outcome.
// Call before Wire; nil (the default) skips recording.
func (s *Server) SetToolMetrics(m ToolInvocationRecorder) { s.toolMetrics = m }

// New builds a Server identifying itself as info, broadcasting list-changed
// notifications (when peers negotiated the capability) through registry.
func New(info session.PeerInfo, instructions string, registry *session.Registry) *Server {
	s := &Server{info: info, instructions: instructions, registry: registry}
	s.Tools = NewToolRegistry(func() { s.broadcast("tools", "tools/list_changed") })
	s.Prompts = NewPromptRegistry(func() { s.broadcast("prompts", "prompts/list_changed") })
	s.Resources = NewResourceRegistry(func() { s.broadcast("resources", "resources/list_changed") })
	s.Completions = NewCompletionRegistry()
	return s
}

func (s *Server) broadcast(capability, method string) {
	if s.registry == nil {
		return
	}
	s.registry.Range(func(sess *session.Session) {
		if sess.State() != session.StateReady {
			return
		}
		if !sess.HasPeerFeature(capability) {
			return
		}
		_ = sess.SendNotification(context.Background(), method, nil)
	})
}

// ServerInfo implements session.Negotiator.
func (s *Server) ServerInfo() session.PeerInfo { return s.info }

// Instructions implements session.Negotiator.
func (s *Server) Instructions() string { return s.instructions }

// Capabilities implements session.Negotiator: tools are always advertised;
// prompts, resources and completions are advertised only once something is
// registered for them, per §9's list_changed open question.
func (s *Server) Capabilities() session.Capabilities {
	caps := session.Capabilities{}
	caps.Set("tools", map[string]bool{"listChanged": true})
	if s.Prompts.Len() > 0 {
		caps.Set("prompts", map[string]bool{"listChanged": true})
	}
	if s.Resources.Len() > 0 {
		caps.Set("resources", map[string]bool{"listChanged": true})
	}
	if s.Completions.Len() > 0 {
		caps.Set("completions", map[string]bool{})
	}
	return caps
}

// Wire registers every method handler on router. Call once at startup,
// after whatever initial tools/prompts/resources/completions are
// registered (later registrations are still picked up live since the
// registries are read on every call, not snapshotted here).
func (s *Server) Wire(router *session.Router) {
	register := func(method string, h session.RequestHandler) {
		router.Handle(method, otelx.WrapRequestHandler(s.tracer, method, h))
	}
	register("tools/list", func(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
		return s.Tools.HandleToolsList(ctx, params)
	})
	register("tools/call", func(ctx context.Context, sess *session.Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
		result, errObj := s.Tools.HandleToolsCall(ctx, sess.ID(), params)
		if s.toolMetrics != nil {
			s.recordToolMetric(params, result, errObj)
		}
		return result, errObj
	})
	register("prompts/list", func(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
		return s.Prompts.HandlePromptsList(ctx, params)
	})
	register("prompts/get", func(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
		return s.Prompts.HandlePromptsGet(ctx, params)
	})
	register("resources/list", func(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
		return s.Resources.HandleResourcesList(ctx, params)
	})
	register("resources/read", func(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
		return s.Resources.HandleResourcesRead(ctx, params)
	})
	register("completion/complete", func(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
		return s.Completions.HandleComplete(ctx, params)
	})
}

func (s *Server) recordToolMetric(params json.RawMessage, result interface{}, errObj *mcp.ErrorObject) {
	var p CallParams
	_ = json.Unmarshal(params, &p)
	isError := errObj != nil
	if tr, ok := result.(ToolResult); ok {
		isError = isError || tr.IsError
	}
	s.toolMetrics.RecordToolInvocation(p.Name, isError)
}

// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for an enriched logger. No package in
// this module stores a logger under it; transports and sessions take an
// explicit *slog.Logger.
type LoggerKey struct{}

// SessionIDKey is the context key type for the ambient MCP session id
// attached to an in-flight tool invocation, so nested server-initiated
// requests (elicitation) know which session to target without threading it
// through every call signature.
type SessionIDKey struct{}

// RequestIDKey is the context key type for the inbound JSON-RPC request id
// currently being handled. No package in this module sets it:
// session.Session matches a `notifications/cancelled` to its handler
// goroutine through its own request-id table.
type RequestIDKey struct{}

// ClaimsKey is the context key type for the verified bearer-token claims the
// authentication gate attaches to an authenticated HTTP request.
type ClaimsKey struct{}

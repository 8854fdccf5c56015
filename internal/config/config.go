// Package config provides configuration loading for the mcpcore server and
// client binaries: transport selection, the auth gate, protocol version
// negotiation bounds, and the ambient logging/elicitation knobs. OSS scope
// only: no admin UI, no remote config store, no secrets manager integration.
package config

import (
	"github.com/spf13/viper"
)

// ServerConfig configures how the mcpserver binds and serves sessions.
type ServerConfig struct {
	// Transport selects the wire transport. "stdio" serves a single session
	// over the process's stdin/stdout; "sse" serves the two-leg HTTP+SSE
	// transport and accepts many concurrent sessions.
	Transport string `yaml:"transport" mapstructure:"transport" validate:"omitempty,oneof=stdio sse"`

	// HTTPAddr is the address the sse transport listens on (e.g.
	// "127.0.0.1:8080"). Ignored when Transport is "stdio".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// BasePath is the URL path the client POSTs JSON-RPC frames to; the SSE
	// stream is served at "/sse" regardless of BasePath. Defaults to "/mcp".
	BasePath string `yaml:"base_path" mapstructure:"base_path"`

	// LogLevel sets the minimum slog level. Defaults to "info"; DevMode
	// overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ShutdownGrace bounds how long Close waits for in-flight handlers and
	// pending outbound requests to drain before forcing sessions closed
	// (e.g. "5s").
	ShutdownGrace string `yaml:"shutdown_grace" mapstructure:"shutdown_grace" validate:"omitempty"`
}

// ProtocolConfig bounds which protocol versions this server will negotiate.
type ProtocolConfig struct {
	// SupportedVersions lists protocol versions, newest first. Defaults to
	// the versions the session package itself knows how to negotiate. The
	// initialize handler does not read this field: it negotiates against
	// session.SupportedProtocolVersions.
	SupportedVersions []string `yaml:"supported_versions" mapstructure:"supported_versions" validate:"omitempty,dive,required"`
}

// ElicitationConfig configures the server-initiated human-input subsystem.
type ElicitationConfig struct {
	// Timeout is a duration string for how long a tool call waits for a
	// client to answer an elicitation/create request (e.g. "5m"). Defaults
	// to "5m". The serve command does not read it; elicitation.New takes its
	// timeout as an argument from its caller.
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
}

// AuthGateConfig configures the OAuth 2.0 protected-resource bearer-token
// gate in front of the sse transport. Ignored entirely when Transport is
// "stdio" (stdio sessions are trusted to the local process, per the auth
// gate's Non-goals).
type AuthGateConfig struct {
	// Enabled turns the bearer-token gate on. When false, sse requests are
	// accepted without an Authorization header.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Issuer is the expected JWT "iss" claim.
	Issuer string `yaml:"issuer" mapstructure:"issuer" validate:"omitempty,url"`

	// Audience is the expected JWT "aud" claim: this resource's canonical
	// URL, used to build the WWW-Authenticate resource parameter and the
	// RFC 9728 protected-resource metadata document.
	Audience string `yaml:"audience" mapstructure:"audience" validate:"omitempty,url"`

	// JWKSURL is where the gate fetches the issuer's signing keys.
	JWKSURL string `yaml:"jwks_url" mapstructure:"jwks_url" validate:"omitempty,url"`

	// ClockSkew is the tolerance applied to exp/nbf/iat checks (e.g. "1m").
	// Defaults to "1m".
	ClockSkew string `yaml:"clock_skew" mapstructure:"clock_skew" validate:"omitempty"`

	// JWKSCacheTTL bounds how long fetched signing keys are cached before
	// re-fetch (e.g. "10m"). Defaults to "10m".
	JWKSCacheTTL string `yaml:"jwks_cache_ttl" mapstructure:"jwks_cache_ttl" validate:"omitempty"`
}

// Config is the top-level configuration for the mcpcore binaries.
// OSS scope: no Redis/Postgres-backed session store, no SIEM audit export,
// no policy engine, no admin UI -- sessions and registries are in-memory,
// and authorization is the single bearer-token gate in AuthGateConfig.
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Protocol    ProtocolConfig    `yaml:"protocol" mapstructure:"protocol"`
	Elicitation ElicitationConfig `yaml:"elicitation" mapstructure:"elicitation"`
	Auth        AuthGateConfig    `yaml:"auth" mapstructure:"auth"`

	// DevMode relaxes defaults for local development: it disables the auth
	// gate unless auth.enabled is set explicitly, and sets debug logging
	// unless server.log_level is set explicitly. It does not change
	// HTTPAddr. Never set this in a deployed instance.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// SetDevDefaults applies permissive defaults for development mode. Applied
// BEFORE validation so a bare `dev_mode: true` config is enough to run.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Server.LogLevel == "" || !viper.IsSet("server.log_level") {
		c.Server.LogLevel = "debug"
	}
	if !viper.IsSet("auth.enabled") {
		c.Auth.Enabled = false
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.Transport == "" {
		c.Server.Transport = "stdio"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/mcp"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownGrace == "" {
		c.Server.ShutdownGrace = "5s"
	}

	if len(c.Protocol.SupportedVersions) == 0 {
		c.Protocol.SupportedVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}
	}

	if c.Elicitation.Timeout == "" {
		c.Elicitation.Timeout = "5m"
	}

	if c.Auth.ClockSkew == "" {
		c.Auth.ClockSkew = "1m"
	}
	if c.Auth.JWKSCacheTTL == "" {
		c.Auth.JWKSCacheTTL = "10m"
	}
}

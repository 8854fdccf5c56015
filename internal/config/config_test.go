package config

import "testing"

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.Transport != "stdio" {
		t.Errorf("Transport = %q, want %q", cfg.Server.Transport, "stdio")
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Server.BasePath != "/mcp" {
		t.Errorf("BasePath = %q, want %q", cfg.Server.BasePath, "/mcp")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Server.ShutdownGrace != "5s" {
		t.Errorf("ShutdownGrace = %q, want %q", cfg.Server.ShutdownGrace, "5s")
	}
	if len(cfg.Protocol.SupportedVersions) == 0 {
		t.Error("SupportedVersions should default to a non-empty list")
	}
	if cfg.Elicitation.Timeout != "5m" {
		t.Errorf("Elicitation.Timeout = %q, want %q", cfg.Elicitation.Timeout, "5m")
	}
	if cfg.Auth.ClockSkew != "1m" {
		t.Errorf("Auth.ClockSkew = %q, want %q", cfg.Auth.ClockSkew, "1m")
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{
			Transport: "sse",
			HTTPAddr:  ":9090",
		},
		Protocol: ProtocolConfig{
			SupportedVersions: []string{"2024-11-05"},
		},
	}
	cfg.SetDefaults()

	if cfg.Server.Transport != "sse" {
		t.Errorf("Transport = %q, want preserved %q", cfg.Server.Transport, "sse")
	}
	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want preserved %q", cfg.Server.HTTPAddr, ":9090")
	}
	if len(cfg.Protocol.SupportedVersions) != 1 || cfg.Protocol.SupportedVersions[0] != "2024-11-05" {
		t.Errorf("SupportedVersions = %v, want preserved [2024-11-05]", cfg.Protocol.SupportedVersions)
	}
}

func TestConfig_SetDevDefaults_NoOpWhenDisabled(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "" {
		t.Errorf("LogLevel = %q, want untouched when DevMode is false", cfg.Server.LogLevel)
	}
}

func TestConfig_SetDevDefaults_RelaxesAuthAndLogging(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q in dev mode", cfg.Server.LogLevel, "debug")
	}
	if cfg.Auth.Enabled {
		t.Error("Auth.Enabled should default to false in dev mode")
	}
}

package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	var cfg Config
	cfg.SetDefaults()
	return cfg
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidate_RejectsUnknownTransport(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Server.Transport = "carrier-pigeon"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for unknown transport")
	}
	if !strings.Contains(err.Error(), "must be one of") {
		t.Errorf("expected 'must be one of' validation message, got: %v", err)
	}
}

func TestValidate_SSERequiresHTTPAddr(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Server.Transport = "sse"
	cfg.Server.HTTPAddr = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when sse transport has no http_addr")
	}
	if !strings.Contains(err.Error(), "http_addr") {
		t.Errorf("expected http_addr in error message, got: %v", err)
	}
}

func TestValidate_EnabledAuthRequiresIssuerAudienceAndJWKS(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Auth.Enabled = true
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for enabled auth gate missing issuer/audience/jwks_url")
	}
	for _, want := range []string{"auth.issuer", "auth.audience", "auth.jwks_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_CompleteAuthGateIsValid(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.Issuer = "https://issuer.example.com"
	cfg.Auth.Audience = "https://mcp.example.com"
	cfg.Auth.JWKSURL = "https://issuer.example.com/.well-known/jwks.json"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("fully configured auth gate should validate, got: %v", err)
	}
}

func TestValidate_RejectsMalformedIssuerURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.Issuer = "not-a-url"
	cfg.Auth.Audience = "https://mcp.example.com"
	cfg.Auth.JWKSURL = "https://issuer.example.com/.well-known/jwks.json"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for malformed issuer URL")
	}
	if !strings.Contains(err.Error(), "valid URL") {
		t.Errorf("expected URL validation message, got: %v", err)
	}
}

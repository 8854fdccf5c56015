package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error with actionable messages if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateAuthGateCompleteness(); err != nil {
		return err
	}
	if err := c.validateTransportRequirements(); err != nil {
		return err
	}

	return nil
}

// validateAuthGateCompleteness ensures an enabled auth gate has everything
// it needs to verify a bearer token: an issuer, an audience to check the
// "aud" claim against, and somewhere to fetch signing keys from.
func (c *Config) validateAuthGateCompleteness() error {
	if !c.Auth.Enabled {
		return nil
	}
	var missing []string
	if c.Auth.Issuer == "" {
		missing = append(missing, "auth.issuer")
	}
	if c.Auth.Audience == "" {
		missing = append(missing, "auth.audience")
	}
	if c.Auth.JWKSURL == "" {
		missing = append(missing, "auth.jwks_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("auth.enabled requires %s", strings.Join(missing, ", "))
	}
	return nil
}

// validateTransportRequirements ensures the sse transport, which multiplexes
// many sessions over one listener, is given an address to bind.
func (c *Config) validateTransportRequirements() error {
	if c.Server.Transport == "sse" && c.Server.HTTPAddr == "" {
		return errors.New("server.transport \"sse\" requires server.http_addr")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

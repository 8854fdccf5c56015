// Package elicitation implements the server-initiated human-input subsystem
// of §4.9: a tool invocation, holding its session-scoped context, asks the
// connected client to collect structured input and blocks until the client
// responds, the request is cancelled, or it times out.
package elicitation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcpcore/mcpcore/internal/ctxkey"
	"github.com/mcpcore/mcpcore/internal/rpc"
	"github.com/mcpcore/mcpcore/internal/session"
)

// DefaultTimeout bounds how long a tool handler waits for a human to answer
// an elicitation prompt before the call fails with a timeout.
const DefaultTimeout = 5 * time.Minute

// Property constrains one field of a requested schema to the subset §4.9
// allows: string|number|integer|boolean plus enum and length/range bounds.
type Property struct {
	Type      string   `json:"type"`
	Enum      []string `json:"enum,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
}

// Schema is the requestedSchema sent with an elicitation/create request.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Result is the normalized reply to an elicitation request (§4.9).
type Result struct {
	Action  string                 `json:"action"` // accept | decline | cancel
	Content map[string]interface{} `json:"content,omitempty"`
}

// Errors a Create call can return, beyond whatever the client's content
// fails validation with.
var (
	ErrTimeout         = errors.New("elicitation: timed out waiting for client response")
	ErrCancelled       = errors.New("elicitation: request cancelled")
	ErrTransportClosed = errors.New("elicitation: session transport closed")
)

// Service issues elicitation/create requests against whatever session the
// calling tool invocation belongs to.
type Service struct {
	registry *session.Registry
	timeout  time.Duration
}

// New builds an elicitation service bound to registry, the same
// process-wide session table the transports populate.
func New(registry *session.Registry, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{registry: registry, timeout: timeout}
}

type createParams struct {
	Message         string `json:"message"`
	RequestedSchema Schema `json:"requestedSchema"`
}

// Create asks the session found via ctx's ambient session id (set by the
// tool dispatcher, ctxkey.SessionIDKey) to collect input matching schema,
// blocking until the client answers, the context is cancelled, or the
// configured timeout elapses.
func (s *Service) Create(ctx context.Context, message string, schema Schema) (Result, error) {
	sessionID, _ := ctx.Value(ctxkey.SessionIDKey{}).(string)
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return Result{}, fmt.Errorf("elicitation: no session %q to elicit from", sessionID)
	}

	params := createParams{Message: message, RequestedSchema: schema}

	reqID := uuid.NewString()
	resp, err := sess.SendRequestTracked(ctx, reqID, "elicitation/create", params, s.timeout)
	if err != nil {
		switch {
		case errors.Is(err, rpc.ErrTimeout):
			return Result{}, ErrTimeout
		case errors.Is(err, rpc.ErrCancelled), errors.Is(err, context.Canceled):
			return Result{}, ErrCancelled
		case errors.Is(err, rpc.ErrTransportClosed):
			return Result{}, ErrTransportClosed
		default:
			return Result{}, err
		}
	}

	if resp.IsError() {
		return Result{}, fmt.Errorf("elicitation: client rejected request: %s", resp.Error.Message)
	}

	var result Result
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return Result{}, fmt.Errorf("elicitation: malformed client response: %w", err)
	}

	if result.Action == "accept" {
		if err := validateContent(schema, result.Content); err != nil {
			return Result{}, fmt.Errorf("elicitation: client response failed schema validation: %w", err)
		}
	}
	return result, nil
}

// validateContent checks an accepted response's content against the
// constrained schema subset §4.9 defines. This is hand-rolled rather than
// routed through go-playground/validator: that library validates Go
// structs via field tags fixed at compile time, and has no entry point for
// validating an arbitrary map against a schema built at runtime.
func validateContent(schema Schema, content map[string]interface{}) error {
	for _, name := range schema.Required {
		if _, ok := content[name]; !ok {
			return fmt.Errorf("missing required field %q", name)
		}
	}
	for name, value := range content {
		prop, ok := schema.Properties[name]
		if !ok {
			continue
		}
		if err := validateProperty(name, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func validateProperty(name string, prop Property, value interface{}) error {
	switch prop.Type {
	case "string":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q must be a string", name)
		}
		if len(prop.Enum) > 0 && !contains(prop.Enum, str) {
			return fmt.Errorf("field %q must be one of %v", name, prop.Enum)
		}
		if prop.MinLength != nil && len(str) < *prop.MinLength {
			return fmt.Errorf("field %q shorter than minLength %d", name, *prop.MinLength)
		}
		if prop.MaxLength != nil && len(str) > *prop.MaxLength {
			return fmt.Errorf("field %q longer than maxLength %d", name, *prop.MaxLength)
		}
	case "number", "integer":
		num, ok := value.(float64)
		if !ok {
			return fmt.Errorf("field %q must be a number", name)
		}
		if prop.Type == "integer" && num != float64(int64(num)) {
			return fmt.Errorf("field %q must be an integer", name)
		}
		if prop.Minimum != nil && num < *prop.Minimum {
			return fmt.Errorf("field %q below minimum %v", name, *prop.Minimum)
		}
		if prop.Maximum != nil && num > *prop.Maximum {
			return fmt.Errorf("field %q above maximum %v", name, *prop.Maximum)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q must be a boolean", name)
		}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

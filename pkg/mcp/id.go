// Package mcp provides the JSON-RPC 2.0 wire codec and envelope types shared by
// every MCP transport and session component.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a JSON-RPC request identifier. It preserves the original JSON token
// (string or number literal) so that a response can echo it back byte-for-byte,
// rather than normalizing numbers to strings the way naive implementations do.
//
// The zero ID is not a valid identifier; use NewStringID/NewNumberID or decode
// one from the wire.
type ID struct {
	raw json.RawMessage
}

// NewStringID builds an ID from a string value.
func NewStringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: b}
}

// NewNumberID builds an ID from an integer value.
func NewNumberID(n int64) ID {
	return ID{raw: []byte(fmt.Sprintf("%d", n))}
}

// IsZero reports whether this ID was never set (absent from the envelope).
func (id ID) IsZero() bool {
	return len(id.raw) == 0
}

// IsString reports whether the original token was a JSON string.
func (id ID) IsString() bool {
	return len(id.raw) > 0 && id.raw[0] == '"'
}

// Key returns a canonical string suitable for use as a map key in the
// pending-request correlator and session registries. String and number IDs
// never collide because the key is tagged with its kind.
func (id ID) Key() string {
	if id.IsZero() {
		return ""
	}
	if id.IsString() {
		var s string
		_ = json.Unmarshal(id.raw, &s)
		return "s:" + s
	}
	return "n:" + string(bytes.TrimSpace(id.raw))
}

// String renders the ID for logging.
func (id ID) String() string {
	if id.IsZero() {
		return "<nil>"
	}
	return string(id.raw)
}

// MarshalJSON emits the original token verbatim, preserving string/number form.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON stores the token as-is after validating it is a JSON string,
// number, or null, per the JSON-RPC 2.0 id field constraints.
func (id *ID) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		id.raw = nil
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("mcp: invalid string id: %w", err)
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("mcp: invalid numeric id: %w", err)
		}
	default:
		return fmt.Errorf("mcp: id must be a string or number, got %q", trimmed)
	}
	id.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// Equal reports whether two IDs share the same canonical key.
func (id ID) Equal(other ID) bool {
	return id.Key() == other.Key()
}

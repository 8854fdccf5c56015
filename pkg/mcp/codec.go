package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decode classifies and parses a single JSON-RPC envelope. Field lookup is
// case-insensitive (a peer sending "Method" or "ID" is tolerated), matching
// §4.1's tolerant-parsing requirement. Classification is purely structural:
//
//	method present, id present      -> *Request
//	method present, id absent       -> *Notification
//	id present, result or error set -> *Response
//	anything else                   -> *ParseError
func Decode(data []byte) (Message, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &ParseError{Err: err, Code: CodeParseError}
	}

	fields := foldKeys(obj)

	var id ID
	idRaw, hasID := fields["id"]
	if hasID {
		if err := json.Unmarshal(idRaw, &id); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("invalid id: %w", err), Code: CodeInvalidRequest}
		}
		hasID = !id.IsZero()
	}

	methodRaw, hasMethod := fields["method"]
	_, hasResult := fields["result"]
	errRaw, hasError := fields["error"]

	switch {
	case hasMethod && hasID:
		var method string
		if err := json.Unmarshal(methodRaw, &method); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("invalid method: %w", err), ID: id, Code: CodeInvalidRequest}
		}
		return &Request{
			ID:     id,
			Method: method,
			Params: fields["params"],
			Meta:   fields["_meta"],
		}, nil

	case hasMethod && !hasID:
		var method string
		if err := json.Unmarshal(methodRaw, &method); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("invalid method: %w", err), Code: CodeInvalidRequest}
		}
		return &Notification{
			Method: method,
			Params: fields["params"],
			Meta:   fields["_meta"],
		}, nil

	case hasID && (hasResult || hasError):
		resp := &Response{ID: id, Result: fields["result"], Meta: fields["_meta"]}
		if hasError {
			var eo ErrorObject
			if err := json.Unmarshal(errRaw, &eo); err != nil {
				return nil, &ParseError{Err: fmt.Errorf("invalid error object: %w", err), ID: id, Code: CodeInvalidRequest}
			}
			resp.Error = &eo
			resp.Result = nil
		}
		return resp, nil

	default:
		return nil, &ParseError{Err: fmt.Errorf("envelope is neither request, notification, nor response"), ID: id, Code: CodeInvalidRequest}
	}
}

// Encode serializes a Message back to its wire form (no trailing newline).
func Encode(msg Message) ([]byte, error) {
	return msg.MarshalEnvelope()
}

// foldKeys builds a lowercase-keyed view of the decoded top-level object so
// lookups ("id", "Method", "PARAMS", ...) are case-insensitive. The MCP core
// fields never legitimately collide case-insensitively, so first-seen wins.
func foldKeys(obj map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		lk := strings.ToLower(k)
		if _, exists := out[lk]; !exists {
			out[lk] = v
		}
	}
	return out
}

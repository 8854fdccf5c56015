package mcpserver

import "encoding/json"

// Content is a tagged union over the payload kinds a tool/prompt/resource
// result can carry (§9 "polymorphic content payloads"): exactly one of the
// typed fields is populated, selected by Type.
type Content struct {
	Type string `json:"type"`

	// Text holds the payload for Type == "text".
	Text string `json:"text,omitempty"`

	// ResourceLink fields, for Type == "resource_link".
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// TextContent builds a "text" content item.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// ResourceLinkContent builds a "resource_link" content item.
func ResourceLinkContent(uri, name, mimeType string) Content {
	return Content{Type: "resource_link", URI: uri, Name: name, MimeType: mimeType}
}

// ToolResult is the normalized shape of a tools/call response (§4.7).
type ToolResult struct {
	Content           []Content       `json:"content"`
	IsError           bool            `json:"isError"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	ResourceLinks     []Content       `json:"resourceLinks,omitempty"`
	Meta              json.RawMessage `json:"_meta,omitempty"`
}

// TextResult is a convenience constructor for the common single-text-block
// success result.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []Content{TextContent(text)}}
}

// ErrorResult builds a tool-level (not protocol-level) failure: the call
// completed but the tool reports its own error, distinct from a JSON-RPC
// error response (§4.7 failure semantics).
func ErrorResult(message string) ToolResult {
	return ToolResult{Content: []Content{TextContent(message)}, IsError: true}
}

// ResourceContent is one item of a resources/read result: either text or
// binary, tagged by the presence of Text vs Blob.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"` // base64-encoded
}

package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool mirrors the wire shape of a registered tool descriptor (§3), decoded
// on the client side from tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Annotations json.RawMessage `json:"annotations,omitempty"`
}

// Content mirrors mcpserver.Content's wire shape: a tagged union over the
// payload kinds a tool/prompt/resource result can carry.
type Content struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ToolCallResult mirrors mcpserver.ToolResult's wire shape.
type ToolCallResult struct {
	Content           []Content       `json:"content"`
	IsError           bool            `json:"isError"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	ResourceLinks     []Content       `json:"resourceLinks,omitempty"`
}

// ListTools issues tools/list.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &body); err != nil {
		return nil, fmt.Errorf("mcpclient: malformed tools/list result: %w", err)
	}
	return body.Tools, nil
}

// CallTool issues tools/call{name, arguments}.
func (c *Client) CallTool(ctx context.Context, name string, arguments interface{}) (ToolCallResult, error) {
	args, err := json.Marshal(arguments)
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("mcpclient: marshal arguments: %w", err)
	}
	params := map[string]interface{}{"name": name, "arguments": json.RawMessage(args)}
	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return ToolCallResult{}, err
	}
	var result ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return ToolCallResult{}, fmt.Errorf("mcpclient: malformed tools/call result: %w", err)
	}
	return result, nil
}

// PromptArgument mirrors a registered prompt's declared argument.
type PromptArgument struct {
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

// Prompt mirrors the wire shape of a registered prompt descriptor.
type Prompt struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptMessage is one opaque message object in a prompts/get result.
type PromptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ListPrompts issues prompts/list, bypassing the catalog. Use Catalog() for
// a cached, invalidate-on-notification view.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	resp, err := c.call(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Prompts []Prompt `json:"prompts"`
	}
	if err := json.Unmarshal(resp.Result, &body); err != nil {
		return nil, fmt.Errorf("mcpclient: malformed prompts/list result: %w", err)
	}
	return body.Prompts, nil
}

// GetPrompt issues prompts/get{name, arguments}.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) ([]PromptMessage, error) {
	params := map[string]interface{}{"name": name}
	if len(arguments) > 0 {
		params["arguments"] = arguments
	}
	resp, err := c.call(ctx, "prompts/get", params)
	if err != nil {
		return nil, err
	}
	var body struct {
		Messages []PromptMessage `json:"messages"`
	}
	if err := json.Unmarshal(resp.Result, &body); err != nil {
		return nil, fmt.Errorf("mcpclient: malformed prompts/get result: %w", err)
	}
	return body.Messages, nil
}

// Resource mirrors the wire shape of a registered resource descriptor.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContent is one item of a resources/read result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ListResources issues resources/list, bypassing the catalog.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	resp, err := c.call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Resources []Resource `json:"resources"`
	}
	if err := json.Unmarshal(resp.Result, &body); err != nil {
		return nil, fmt.Errorf("mcpclient: malformed resources/list result: %w", err)
	}
	return body.Resources, nil
}

// ReadResource issues resources/read{uri}.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	resp, err := c.call(ctx, "resources/read", map[string]string{"uri": uri})
	if err != nil {
		return nil, err
	}
	var body struct {
		Contents []ResourceContent `json:"contents"`
	}
	if err := json.Unmarshal(resp.Result, &body); err != nil {
		return nil, fmt.Errorf("mcpclient: malformed resources/read result: %w", err)
	}
	return body.Contents, nil
}

// CompletionRef identifies what is being completed (mirrors
// mcpserver.CompletionRef's wire shape).
type CompletionRef struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// CompletionArgument is the argument being completed and its partial value.
type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CompletionResult is what completion/complete returns.
type CompletionResult struct {
	Values  []string `json:"values"`
	Total   *int     `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// CompleteAsync issues completion/complete{ref, argument, context}.
func (c *Client) CompleteAsync(ctx context.Context, ref CompletionRef, argument CompletionArgument, completionCtx map[string]interface{}) (CompletionResult, error) {
	params := map[string]interface{}{"ref": ref, "argument": argument}
	if len(completionCtx) > 0 {
		params["context"] = completionCtx
	}
	resp, err := c.call(ctx, "completion/complete", params)
	if err != nil {
		return CompletionResult{}, err
	}
	var result CompletionResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return CompletionResult{}, fmt.Errorf("mcpclient: malformed completion/complete result: %w", err)
	}
	return result, nil
}

package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mcpcore/mcpcore/pkg/mcp"
)

func TestToolRegisterIdempotence(t *testing.T) {
	r := NewToolRegistry(nil)
	tool := Tool{Name: "add", Handler: func(ctx context.Context, args json.RawMessage) (ToolResult, error) {
		return TextResult("ok"), nil
	}}

	if err := r.Register(tool, false); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(tool, false); err == nil {
		t.Fatal("expected duplicate registration without overwrite to fail")
	}
	if r.Len() != 1 {
		t.Fatalf("expected registry untouched by failed duplicate, got %d entries", r.Len())
	}

	replaced := Tool{Name: "add", Description: "replaced", Handler: tool.Handler}
	if err := r.Register(replaced, true); err != nil {
		t.Fatalf("overwrite register: %v", err)
	}
	got, _ := r.Lookup("add")
	if got.Description != "replaced" {
		t.Fatalf("expected overwritten descriptor, got %+v", got)
	}
}

func TestBindArgumentsOrderOfPrecedence(t *testing.T) {
	params := []ParamSpec{
		{Name: "a", Required: true},
		{Name: "b", Default: json.RawMessage(`0`)},
		{Name: "c", Required: true},
	}

	_, err := bindArguments(params, json.RawMessage(`{"a":5}`))
	if err == nil {
		t.Fatal("expected missing required argument c to fail")
	}

	bound, err := bindArguments(params, json.RawMessage(`{"A":5,"c":9}`))
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	var decoded map[string]json.RawMessage
	json.Unmarshal(bound, &decoded)
	if string(decoded["a"]) != "5" {
		t.Fatalf("expected case-insensitive match for 'A', got %s", decoded["a"])
	}
	if string(decoded["b"]) != "0" {
		t.Fatalf("expected default applied for b, got %s", decoded["b"])
	}
}

func TestToolsCallEndToEnd(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(Tool{
		Name: "add",
		Params: []ParamSpec{
			{Name: "a", Required: true},
			{Name: "b", Required: true},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (ToolResult, error) {
			var a struct{ A, B float64 }
			json.Unmarshal(args, &a)
			return TextResult("sum computed"), nil
		},
	}, false)

	result, errObj := r.HandleToolsCall(context.Background(), "sess-1", json.RawMessage(`{"name":"add","arguments":{"a":5,"b":7}}`))
	if errObj != nil {
		t.Fatalf("unexpected error: %+v", errObj)
	}
	tr, ok := result.(ToolResult)
	if !ok {
		t.Fatalf("expected ToolResult, got %T", result)
	}
	if tr.IsError || tr.Content[0].Text != "sum computed" {
		t.Fatalf("unexpected result: %+v", tr)
	}
}

func TestToolsCallUnknownToolIsInvalidParams(t *testing.T) {
	r := NewToolRegistry(nil)
	_, errObj := r.HandleToolsCall(context.Background(), "sess-1", json.RawMessage(`{"name":"missing"}`))
	if errObj == nil || errObj.Code != mcp.CodeInvalidParams {
		t.Fatalf("expected -32602, got %+v", errObj)
	}
}

func TestToolsCallMissingRequiredArgumentReportsStructuredData(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(Tool{
		Name: "add",
		Params: []ParamSpec{
			{Name: "a", Required: true},
			{Name: "b", Required: true},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (ToolResult, error) {
			return TextResult("unreachable"), nil
		},
	}, false)

	_, errObj := r.HandleToolsCall(context.Background(), "sess-1", json.RawMessage(`{"name":"add","arguments":{"a":5}}`))
	if errObj == nil || errObj.Code != mcp.CodeInvalidParams {
		t.Fatalf("expected -32602, got %+v", errObj)
	}
	var data bindingErrorData
	if err := json.Unmarshal(errObj.Data, &data); err != nil {
		t.Fatalf("expected structured error data, got: %v (raw %s)", err, errObj.Data)
	}
	if len(data.MissingFields) != 1 || data.MissingFields[0] != "b" {
		t.Fatalf("expected missingFields=[b], got %+v", data.MissingFields)
	}
}

func TestResourceLookupIsCaseInsensitive(t *testing.T) {
	r := NewResourceRegistry(nil)
	r.Register(Resource{
		URI: "File:///Notes.txt",
		Reader: func(ctx context.Context, uri string) ([]ResourceContent, error) {
			return []ResourceContent{{URI: uri, Text: "hello"}}, nil
		},
	}, false)

	if _, ok := r.Lookup("file:///notes.txt"); !ok {
		t.Fatal("expected case-insensitive URI lookup to succeed")
	}
}

func TestCompletionMissingHandlerIsInvalidParams(t *testing.T) {
	r := NewCompletionRegistry()
	params, _ := json.Marshal(CompleteParams{Ref: CompletionRef{Type: "ref/prompt", Name: "nope"}})
	_, errObj := r.HandleComplete(context.Background(), params)
	if errObj == nil || errObj.Code != mcp.CodeInvalidParams {
		t.Fatalf("expected -32602, got %+v", errObj)
	}
}

func TestCompletionCacheDistinguishesContext(t *testing.T) {
	r := NewCompletionRegistry()
	calls := 0
	r.Register(CompletionRef{Type: "ref/prompt", Name: "draft-follow-up-email"}, func(ctx context.Context, arg CompletionArgument, cctx json.RawMessage) (CompletionResult, error) {
		calls++
		var parsed struct {
			Arguments map[string]string `json:"arguments"`
		}
		json.Unmarshal(cctx, &parsed)
		return CompletionResult{Values: []string{parsed.Arguments["team"]}}, nil
	})

	base := CompleteParams{
		Ref:      CompletionRef{Type: "ref/prompt", Name: "draft-follow-up-email"},
		Argument: CompletionArgument{Name: "recipient", Value: "eng"},
	}

	p1 := base
	p1.Context, _ = json.Marshal(map[string]interface{}{"arguments": map[string]string{"team": "platform"}})
	params1, _ := json.Marshal(p1)
	result1, errObj := r.HandleComplete(context.Background(), params1)
	if errObj != nil {
		t.Fatalf("unexpected error: %+v", errObj)
	}

	p2 := base
	p2.Context, _ = json.Marshal(map[string]interface{}{"arguments": map[string]string{"team": "infra"}})
	params2, _ := json.Marshal(p2)
	result2, errObj := r.HandleComplete(context.Background(), params2)
	if errObj != nil {
		t.Fatalf("unexpected error: %+v", errObj)
	}

	cr1 := result1.(CompletionResult)
	cr2 := result2.(CompletionResult)
	if cr1.Values[0] == cr2.Values[0] {
		t.Fatalf("expected different contexts to yield different cached results, got %q twice", cr1.Values[0])
	}
	if calls != 2 {
		t.Fatalf("expected the handler to be invoked once per distinct context, got %d calls", calls)
	}
}

func TestCompletionHandlerDispatchesByRef(t *testing.T) {
	r := NewCompletionRegistry()
	r.Register(CompletionRef{Type: "ref/prompt", Name: "draft-follow-up-email"}, func(ctx context.Context, arg CompletionArgument, cctx json.RawMessage) (CompletionResult, error) {
		total := 1
		return CompletionResult{Values: []string{"engineering@mcp.example"}, Total: &total}, nil
	})

	params, _ := json.Marshal(CompleteParams{
		Ref:      CompletionRef{Type: "ref/prompt", Name: "draft-follow-up-email"},
		Argument: CompletionArgument{Name: "recipient", Value: "eng"},
	})
	result, errObj := r.HandleComplete(context.Background(), params)
	if errObj != nil {
		t.Fatalf("unexpected error: %+v", errObj)
	}
	cr := result.(CompletionResult)
	if len(cr.Values) != 1 || cr.Values[0] != "engineering@mcp.example" {
		t.Fatalf("unexpected result: %+v", cr)
	}
}

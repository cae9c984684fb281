package providers

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/finsight/internal/agent"
	"github.com/haasonsaas/finsight/pkg/models"
)

func TestNewAnthropicProviderValidation(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Error("empty API key accepted")
	}

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("name = %s", p.Name())
	}
	if p.maxRetries != 3 || p.defaultModel == "" {
		t.Errorf("defaults not applied: %+v", p)
	}
}

func TestConvertAnthropicMessages(t *testing.T) {
	msgs, err := convertAnthropicMessages([]agent.CompletionMessage{
		{Role: "system", Content: "skipped"},
		{Role: "user", Content: "what was margin?"},
		{
			Role:    "assistant",
			Content: "checking",
			ToolCalls: []models.ToolCall{
				{ID: "tc-1", Name: "search", Input: json.RawMessage(`{"q":"margin"}`)},
			},
		},
		{
			Role: "tool",
			ToolResults: []models.ToolResult{
				{ToolCallID: "tc-1", Content: "38%", IsError: false},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// System turn is stripped; tool turn becomes a user message.
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if string(msgs[0].Role) != "user" {
		t.Errorf("first role = %s", msgs[0].Role)
	}
	if string(msgs[1].Role) != "assistant" {
		t.Errorf("second role = %s", msgs[1].Role)
	}
	if string(msgs[2].Role) != "user" {
		t.Errorf("tool turn role = %s, want user", msgs[2].Role)
	}
}

func TestConvertAnthropicMessagesRejectsBadToolInput(t *testing.T) {
	_, err := convertAnthropicMessages([]agent.CompletionMessage{
		{
			Role:      "assistant",
			ToolCalls: []models.ToolCall{{ID: "tc-1", Name: "x", Input: json.RawMessage(`{oops`)}},
		},
	})
	if err == nil {
		t.Fatal("invalid tool input accepted")
	}
}

func TestAssembledToolInputDefaultsEmptyToObject(t *testing.T) {
	if got := assembledToolInput(""); string(got) != "{}" {
		t.Errorf("empty input = %s", got)
	}
	if got := assembledToolInput("  "); string(got) != "{}" {
		t.Errorf("blank input = %s", got)
	}
	if got := assembledToolInput(`{"q":"x"}`); string(got) != `{"q":"x"}` {
		t.Errorf("input rewritten: %s", got)
	}

	// A no-argument tool call must survive the next conversion round trip.
	msgs, err := convertAnthropicMessages([]agent.CompletionMessage{
		{
			Role:      "assistant",
			ToolCalls: []models.ToolCall{{ID: "tc-1", Name: "list_docs", Input: assembledToolInput("")}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
}

func TestConvertAnthropicTools(t *testing.T) {
	defs := []agent.ToolDefinition{
		{
			Name:        "calculate",
			Description: "evaluates arithmetic",
			Schema:      json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string"}}}`),
		},
	}
	tools, err := convertAnthropicTools(defs)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("tools = %+v", tools)
	}
	if tools[0].OfTool.Name != "calculate" {
		t.Errorf("name = %s", tools[0].OfTool.Name)
	}

	if _, err := convertAnthropicTools([]agent.ToolDefinition{
		{Name: "bad", Schema: json.RawMessage(`{broken`)},
	}); err == nil {
		t.Error("invalid schema accepted")
	}
}

func TestMaxTokensDefault(t *testing.T) {
	if maxTokens(0) != 4096 {
		t.Errorf("maxTokens(0) = %d", maxTokens(0))
	}
	if maxTokens(1024) != 1024 {
		t.Errorf("maxTokens(1024) = %d", maxTokens(1024))
	}
}

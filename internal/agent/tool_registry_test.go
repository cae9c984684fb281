package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/finsight/pkg/models"
)

func TestRegistryRejectsBadDeclarations(t *testing.T) {
	r := NewToolRegistry()

	if err := r.Register(&fakeTool{name: ""}); err == nil {
		t.Error("empty name accepted")
	}
	if err := r.Register(&fakeTool{name: strings.Repeat("a", MaxToolNameLength+1)}); err == nil {
		t.Error("oversized name accepted")
	}
	if err := r.Register(&fakeTool{name: "bad_schema", schema: `{"type":`}); err == nil {
		t.Error("malformed schema accepted")
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewToolRegistry()
	out := r.Dispatch(context.Background(), "missing", json.RawMessage(`{}`))

	if out == nil {
		t.Fatal("dispatch returned nil")
	}
	if out.Type != models.OutputError {
		t.Fatalf("type = %s, want error", out.Type)
	}
	if !strings.Contains(string(out.Data), "unknown tool: missing") {
		t.Errorf("data = %s", out.Data)
	}
}

func TestDispatchValidatesInputSchema(t *testing.T) {
	r := NewToolRegistry()
	r.MustRegister(&fakeTool{
		name:   "strict",
		schema: `{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`,
		fn: func(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
			return models.NewOutput(models.OutputAnalysis, map[string]string{"text": "ok"}), nil
		},
	})

	tests := []struct {
		name    string
		input   json.RawMessage
		wantErr bool
	}{
		{"valid", json.RawMessage(`{"query":"revenue"}`), false},
		{"missing required", json.RawMessage(`{}`), true},
		{"wrong type", json.RawMessage(`{"query":7}`), true},
		{"not json", json.RawMessage(`{broken`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Dispatch(context.Background(), "strict", tt.input)
			isErr := out.Type == models.OutputError
			if isErr != tt.wantErr {
				t.Errorf("error = %v, want %v (data: %s)", isErr, tt.wantErr, out.Data)
			}
		})
	}
}

func TestDispatchOversizedInput(t *testing.T) {
	r := NewToolRegistry()
	r.MustRegister(&fakeTool{
		name: "echo",
		fn: func(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
			return models.NewOutput(models.OutputAnalysis, map[string]string{"text": "ok"}), nil
		},
	})

	huge := json.RawMessage(`{"pad":"` + strings.Repeat("x", MaxToolInputSize) + `"}`)
	out := r.Dispatch(context.Background(), "echo", huge)
	if out.Type != models.OutputError {
		t.Fatalf("type = %s, want error", out.Type)
	}
}

func TestDispatchExecutorFailures(t *testing.T) {
	r := NewToolRegistry()
	r.MustRegister(&fakeTool{
		name: "nil_output",
		fn: func(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
			return nil, nil
		},
	})
	r.MustRegister(&fakeTool{
		name: "bad_variant",
		fn: func(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
			return &models.ToolOutput{Type: "hologram"}, nil
		},
	})

	out := r.Dispatch(context.Background(), "nil_output", json.RawMessage(`{}`))
	if out.Type != models.OutputError || !strings.Contains(string(out.Data), "no output") {
		t.Errorf("nil output: %+v", out)
	}

	out = r.Dispatch(context.Background(), "bad_variant", json.RawMessage(`{}`))
	if out.Type != models.OutputError || !strings.Contains(string(out.Data), "hologram") {
		t.Errorf("bad variant: %+v", out)
	}
}

func TestRegistryDefinitions(t *testing.T) {
	r := NewToolRegistry()
	r.MustRegister(&fakeTool{
		name:   "search_knowledge",
		schema: `{"type":"object","properties":{"query":{"type":"string"}}}`,
		fn: func(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
			return models.NewOutput(models.OutputCitations, nil), nil
		},
	})

	defs := r.Definitions()
	if len(defs) != 1 {
		t.Fatalf("got %d definitions", len(defs))
	}
	if defs[0].Name != "search_knowledge" || defs[0].Description == "" || len(defs[0].Schema) == 0 {
		t.Errorf("definition = %+v", defs[0])
	}
}

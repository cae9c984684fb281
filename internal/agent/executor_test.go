package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/finsight/pkg/models"
)

func TestExecuteAllPreservesCallOrder(t *testing.T) {
	registry := NewToolRegistry()
	registry.MustRegister(&fakeTool{
		name: "echo",
		fn: func(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
			var in struct {
				N     int `json:"n"`
				Sleep int `json:"sleep_ms"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, err
			}
			time.Sleep(time.Duration(in.Sleep) * time.Millisecond)
			return models.NewOutput(models.OutputCalculation, map[string]int{"n": in.N}), nil
		},
	})

	// Earlier calls sleep longer so completion order inverts input order.
	calls := make([]models.ToolCall, 4)
	for i := range calls {
		calls[i] = models.ToolCall{
			ID:    fmt.Sprintf("tc-%d", i),
			Name:  "echo",
			Input: json.RawMessage(fmt.Sprintf(`{"n":%d,"sleep_ms":%d}`, i, (4-i)*20)),
		}
	}

	executor := NewExecutor(registry, nil)
	results := executor.ExecuteAll(context.Background(), calls)

	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, r := range results {
		if r.ToolCallID != fmt.Sprintf("tc-%d", i) {
			t.Errorf("result %d has call id %s", i, r.ToolCallID)
		}
		var payload struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(r.Output.Data, &payload); err != nil || payload.N != i {
			t.Errorf("result %d payload = %s", i, r.Output.Data)
		}
	}
}

func TestExecutePanicIsolated(t *testing.T) {
	registry := NewToolRegistry()
	registry.MustRegister(&fakeTool{
		name: "bomb",
		fn: func(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
			panic("kaboom")
		},
	})

	executor := NewExecutor(registry, nil)
	result := executor.Execute(context.Background(), models.ToolCall{
		ID: "tc-1", Name: "bomb", Input: json.RawMessage(`{}`),
	})

	if result.Output.Type != models.OutputError {
		t.Fatalf("output type = %s, want error", result.Output.Type)
	}
	if !strings.Contains(string(result.Output.Data), "kaboom") {
		t.Errorf("panic message lost: %s", result.Output.Data)
	}
}

func TestExecuteTimeout(t *testing.T) {
	registry := NewToolRegistry()
	registry.MustRegister(&fakeTool{
		name: "slow",
		fn: func(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return models.NewOutput(models.OutputAnalysis, map[string]string{"text": "late"}), nil
			}
		},
	})

	executor := NewExecutor(registry, &ExecutorConfig{MaxConcurrency: 1, Timeout: 20 * time.Millisecond})
	result := executor.Execute(context.Background(), models.ToolCall{
		ID: "tc-1", Name: "slow", Input: json.RawMessage(`{}`),
	})

	if result.Output.Type != models.OutputError {
		t.Fatalf("output type = %s, want error", result.Output.Type)
	}
	if !strings.Contains(string(result.Output.Data), "timed out") {
		t.Errorf("timeout not reported: %s", result.Output.Data)
	}
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	registry := NewToolRegistry()
	registry.MustRegister(&fakeTool{
		name: "noop",
		fn: func(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
			return models.NewOutput(models.OutputAnalysis, map[string]string{"text": "ok"}), nil
		},
	})

	// Saturate the semaphore so the next call blocks on acquisition.
	executor := NewExecutor(registry, &ExecutorConfig{MaxConcurrency: 1, Timeout: time.Second})
	executor.sem <- struct{}{}
	defer func() { <-executor.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := executor.Execute(ctx, models.ToolCall{ID: "tc-1", Name: "noop", Input: json.RawMessage(`{}`)})

	if result.Output.Type != models.OutputError {
		t.Fatalf("output type = %s, want error", result.Output.Type)
	}
	if !strings.Contains(string(result.Output.Data), "cancelled") {
		t.Errorf("cancellation not reported: %s", result.Output.Data)
	}
}

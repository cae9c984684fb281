package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/finsight/internal/agent"
	"github.com/haasonsaas/finsight/pkg/models"
)

// routingProvider answers by inspecting the request, since workers run in
// parallel and call order is not deterministic.
type routingProvider struct {
	respond func(req *agent.CompletionRequest) (string, error)
}

func (p *routingProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	text, err := p.respond(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan *agent.CompletionChunk, 2)
	ch <- &agent.CompletionChunk{Text: text}
	ch <- &agent.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *routingProvider) Name() string { return "routing" }

func phase(req *agent.CompletionRequest) string {
	switch {
	case strings.Contains(req.System, "planner"):
		return "decompose"
	case strings.Contains(req.System, "one focused subtask"):
		return "worker"
	case strings.Contains(req.System, "combining independent findings"):
		return "synthesize"
	}
	return "unknown"
}

func workerPrompt(req *agent.CompletionRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[0].Content
}

func TestEngineRunFullPipeline(t *testing.T) {
	provider := &routingProvider{respond: func(req *agent.CompletionRequest) (string, error) {
		switch phase(req) {
		case "decompose":
			return `Here is the plan:
[{"type":"summary","priority":2,"description":"summarize results"},
 {"type":"trend","priority":1,"description":"revenue trend"}]`, nil
		case "worker":
			if strings.Contains(workerPrompt(req), "revenue trend") {
				return "Revenue accelerated.\nMETRICS:\n{\"qoq_growth\":\"4.2%\"}", nil
			}
			return "Overall the quarter was strong.", nil
		case "synthesize":
			return "Executive summary: growth accelerated; recommendations follow.", nil
		}
		return "", errors.New("unexpected call")
	}}

	engine := NewEngine(provider, Config{}, nil)
	result, err := engine.Run(context.Background(), Request{Query: "How did we do this quarter?"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.SubTasks) != 2 {
		t.Fatalf("subtasks = %d, want 2", len(result.SubTasks))
	}
	// Priority 1 sorts first.
	if result.SubTasks[0].Type != models.TaskTrend || result.SubTasks[1].Type != models.TaskSummary {
		t.Errorf("subtask order = %s, %s", result.SubTasks[0].Type, result.SubTasks[1].Type)
	}
	if len(result.Results) != len(result.SubTasks) {
		t.Fatalf("results = %d, subtasks = %d", len(result.Results), len(result.SubTasks))
	}
	if result.Results[0].Metrics["qoq_growth"] != "4.2%" {
		t.Errorf("metrics = %+v", result.Results[0].Metrics)
	}
	if result.Results[0].Narrative != "Revenue accelerated." {
		t.Errorf("narrative = %q", result.Results[0].Narrative)
	}
	if result.Degraded != 0 {
		t.Errorf("degraded = %d", result.Degraded)
	}
	if !strings.Contains(result.Narrative, "Executive summary") {
		t.Errorf("synthesis narrative = %q", result.Narrative)
	}
}

func TestEngineDecompositionFallback(t *testing.T) {
	provider := &routingProvider{respond: func(req *agent.CompletionRequest) (string, error) {
		switch phase(req) {
		case "decompose":
			return "I cannot produce a plan right now.", nil
		case "worker":
			return "a finding", nil
		case "synthesize":
			return "combined", nil
		}
		return "", errors.New("unexpected call")
	}}

	engine := NewEngine(provider, Config{}, nil)
	result, err := engine.Run(context.Background(), Request{Query: "analyze margins"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.SubTasks) != 2 {
		t.Fatalf("fallback plan size = %d, want 2", len(result.SubTasks))
	}
	if result.SubTasks[0].Type != models.TaskTrend || result.SubTasks[1].Type != models.TaskSummary {
		t.Errorf("fallback plan = %+v", result.SubTasks)
	}
}

func TestEngineWorkerDegradation(t *testing.T) {
	provider := &routingProvider{respond: func(req *agent.CompletionRequest) (string, error) {
		switch phase(req) {
		case "decompose":
			return `[{"type":"variance","priority":1,"description":"budget variance"},
				{"type":"risk","priority":2,"description":"risk factors"}]`, nil
		case "worker":
			if strings.Contains(workerPrompt(req), "risk factors") {
				return "", errors.New("provider unavailable")
			}
			return "Variance within 2% of budget.", nil
		case "synthesize":
			return "partial synthesis", nil
		}
		return "", errors.New("unexpected call")
	}}

	engine := NewEngine(provider, Config{}, nil)
	result, err := engine.Run(context.Background(), Request{Query: "variance and risk"})
	if err != nil {
		t.Fatal(err)
	}

	// Count invariant: every subtask gets a result, degraded or not.
	if len(result.Results) != len(result.SubTasks) {
		t.Fatalf("results = %d, subtasks = %d", len(result.Results), len(result.SubTasks))
	}
	if result.Degraded != 1 {
		t.Errorf("degraded = %d, want 1", result.Degraded)
	}
	riskResult := result.Results[1]
	if !riskResult.Degraded || riskResult.Narrative != "analysis unavailable" {
		t.Errorf("degraded result = %+v", riskResult)
	}
	if riskResult.Type != models.TaskRisk {
		t.Errorf("degraded result lost its type: %s", riskResult.Type)
	}
	if result.Narrative != "partial synthesis" {
		t.Errorf("synthesis skipped: %q", result.Narrative)
	}
}

func TestEngineSynthesisFallback(t *testing.T) {
	provider := &routingProvider{respond: func(req *agent.CompletionRequest) (string, error) {
		switch phase(req) {
		case "decompose":
			return `[{"type":"trend","priority":1,"description":"trend"},
				{"type":"summary","priority":2,"description":"summary"}]`, nil
		case "worker":
			return "worker finding", nil
		case "synthesize":
			return "", errors.New("synthesis model down")
		}
		return "", errors.New("unexpected call")
	}}

	engine := NewEngine(provider, Config{}, nil)
	result, err := engine.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Narrative, "## trend") || !strings.Contains(result.Narrative, "worker finding") {
		t.Errorf("fallback narrative = %q", result.Narrative)
	}
}

func TestEngineClampsSubTaskCount(t *testing.T) {
	plan := `[
		{"type":"variance","priority":1,"description":"a"},
		{"type":"trend","priority":2,"description":"b"},
		{"type":"ratio","priority":3,"description":"c"},
		{"type":"comparison","priority":4,"description":"d"},
		{"type":"forecast","priority":5,"description":"e"},
		{"type":"risk","priority":6,"description":"f"}]`
	provider := &routingProvider{respond: func(req *agent.CompletionRequest) (string, error) {
		switch phase(req) {
		case "decompose":
			return plan, nil
		case "worker":
			return "finding", nil
		case "synthesize":
			return "done", nil
		}
		return "", errors.New("unexpected call")
	}}

	engine := NewEngine(provider, Config{}, nil)
	result, err := engine.Run(context.Background(), Request{Query: "everything"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.SubTasks) != 4 {
		t.Errorf("subtasks = %d, want clamp to 4", len(result.SubTasks))
	}
	if len(result.Results) != 4 {
		t.Errorf("results = %d, want 4", len(result.Results))
	}
}

func TestParseSubTasksDropsInvalidEntries(t *testing.T) {
	raw := `[
		{"type":"trend","priority":1,"description":"ok"},
		{"type":"astrology","priority":1,"description":"nope"},
		{"type":"summary","priority":0,"description":"priority floor"},
		{"type":"risk","priority":2,"description":"  "}]`

	subtasks := parseSubTasks(raw)
	if len(subtasks) != 2 {
		t.Fatalf("got %d subtasks, want 2", len(subtasks))
	}
	for _, st := range subtasks {
		if st.Priority < 1 {
			t.Errorf("priority %d below floor", st.Priority)
		}
	}
}

func TestParseWorkerResponse(t *testing.T) {
	narrative, metrics := parseWorkerResponse("Margin improved.\nMETRICS:\n{\"margin\":\"38%\",\"delta\":2}")
	if narrative != "Margin improved." {
		t.Errorf("narrative = %q", narrative)
	}
	if metrics["margin"] != "38%" || metrics["delta"] != "2" {
		t.Errorf("metrics = %+v", metrics)
	}

	narrative, metrics = parseWorkerResponse("Just prose, no metrics.")
	if narrative != "Just prose, no metrics." || metrics != nil {
		t.Errorf("plain response mishandled: %q %+v", narrative, metrics)
	}

	// Broken metrics JSON keeps the full text as narrative.
	narrative, metrics = parseWorkerResponse("Text.\nMETRICS:\n{broken")
	if metrics != nil || !strings.Contains(narrative, "Text.") {
		t.Errorf("broken metrics mishandled: %q %+v", narrative, metrics)
	}
}

// Package analysis exposes the decompose-execute-synthesize engine as a
// registry tool for deep multi-angle questions.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	engine "github.com/haasonsaas/finsight/internal/analysis"
	"github.com/haasonsaas/finsight/internal/tools"
	"github.com/haasonsaas/finsight/pkg/models"
)

// Runner is the engine surface the tool needs.
type Runner interface {
	Run(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Tool runs a structured financial analysis.
type Tool struct {
	runner Runner
}

// New creates the analysis tool over an engine.
func New(runner Runner) *Tool {
	return &Tool{runner: runner}
}

type analysisInput struct {
	Query    string `json:"query" jsonschema:"required,description=The analytical question to investigate"`
	Audience string `json:"audience,omitempty" jsonschema:"description=Who the analysis is for such as the CFO or the board"`
	Context  string `json:"context,omitempty" jsonschema:"description=Relevant background the analysis should incorporate"`
}

func (t *Tool) Name() string { return "run_analysis" }

func (t *Tool) Description() string {
	return "Run a deep financial analysis: the question is decomposed into subtasks, investigated in parallel and synthesized into one narrative. Use for multi-angle questions, not simple lookups."
}

func (t *Tool) Schema() json.RawMessage {
	return tools.SchemaFor(&analysisInput{})
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in analysisInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("analysis query must not be empty")
	}
	if t.runner == nil {
		return nil, fmt.Errorf("analysis engine is not configured")
	}

	result, err := t.runner.Run(ctx, engine.Request{
		Query:    in.Query,
		Audience: in.Audience,
		Context:  in.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("run analysis: %w", err)
	}

	return models.NewOutput(models.OutputAnalysis, result), nil
}

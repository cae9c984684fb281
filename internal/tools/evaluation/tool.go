// Package evaluation exposes the evaluate-improve engine as a registry
// tool for scoring and polishing drafted artifacts.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/finsight/internal/tools"
	"github.com/haasonsaas/finsight/pkg/models"
)

// Runner is the engine surface the tool needs.
type Runner interface {
	Run(ctx context.Context, artifact string, optimize bool) (*models.EvaluationReport, error)
}

// Tool scores an artifact against the quality rubric, optionally
// rewriting it until it passes or the iteration cap is hit.
type Tool struct {
	runner Runner
}

// New creates the evaluation tool over an engine.
func New(runner Runner) *Tool {
	return &Tool{runner: runner}
}

type evaluationInput struct {
	Artifact string `json:"artifact" jsonschema:"required,description=The draft text to evaluate"`
	Optimize bool   `json:"optimize,omitempty" jsonschema:"description=Rewrite the draft until it passes the rubric"`
}

func (t *Tool) Name() string { return "evaluate_artifact" }

func (t *Tool) Description() string {
	return "Score a drafted answer or report against the quality rubric (accuracy, completeness, clarity, actionability). Set optimize to also rewrite it until it passes."
}

func (t *Tool) Schema() json.RawMessage {
	return tools.SchemaFor(&evaluationInput{})
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in evaluationInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if strings.TrimSpace(in.Artifact) == "" {
		return nil, fmt.Errorf("artifact must not be empty")
	}
	if t.runner == nil {
		return nil, fmt.Errorf("evaluation engine is not configured")
	}

	report, err := t.runner.Run(ctx, in.Artifact, in.Optimize)
	if err != nil {
		return nil, fmt.Errorf("evaluate artifact: %w", err)
	}

	return models.NewOutput(models.OutputEvaluation, report), nil
}

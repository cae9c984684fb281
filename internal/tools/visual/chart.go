// Package visual builds canvas artifacts: charts, tables and image
// specifications. All tools here are pure transformations of their input;
// rendering happens client-side.
package visual

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/finsight/internal/tools"
	"github.com/haasonsaas/finsight/pkg/models"
)

// ChartTool validates and normalizes a chart description into the canvas
// chart payload.
type ChartTool struct{}

// NewChartTool creates the chart tool.
func NewChartTool() *ChartTool { return &ChartTool{} }

var chartKinds = map[string]bool{
	"bar":     true,
	"line":    true,
	"area":    true,
	"pie":     true,
	"scatter": true,
}

type chartPoint struct {
	Label string  `json:"label" jsonschema:"required,description=Category or x-axis label"`
	Value float64 `json:"value" jsonschema:"required"`
}

type chartSeries struct {
	Name   string       `json:"name" jsonschema:"required"`
	Points []chartPoint `json:"points" jsonschema:"required"`
}

type chartInput struct {
	Title  string        `json:"title" jsonschema:"required,description=Chart title shown on the canvas"`
	Kind   string        `json:"kind" jsonschema:"required,description=One of bar line area pie scatter"`
	XLabel string        `json:"x_label,omitempty"`
	YLabel string        `json:"y_label,omitempty"`
	Series []chartSeries `json:"series" jsonschema:"required,description=At least one data series"`
}

// chartPayload is the canvas data document. Title lives at the top level
// so artifact titles can be lifted without knowing the chart structure.
type chartPayload struct {
	Title  string        `json:"title"`
	Kind   string        `json:"kind"`
	XLabel string        `json:"x_label,omitempty"`
	YLabel string        `json:"y_label,omitempty"`
	Series []chartSeries `json:"series"`
}

func (t *ChartTool) Name() string { return "create_chart" }

func (t *ChartTool) Description() string {
	return "Create a chart for the canvas from labeled data points. Kinds: bar, line, area, pie, scatter. Use after you have concrete numbers."
}

func (t *ChartTool) Schema() json.RawMessage {
	return tools.SchemaFor(&chartInput{})
}

func (t *ChartTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in chartInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if !chartKinds[kind] {
		return nil, fmt.Errorf("unsupported chart kind %q", in.Kind)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("chart title must not be empty")
	}
	if len(in.Series) == 0 {
		return nil, fmt.Errorf("chart needs at least one series")
	}
	for i, s := range in.Series {
		if len(s.Points) == 0 {
			return nil, fmt.Errorf("series %d (%q) has no data points", i, s.Name)
		}
	}
	if kind == "pie" && len(in.Series) > 1 {
		return nil, fmt.Errorf("pie charts take a single series, got %d", len(in.Series))
	}

	return models.NewOutput(models.OutputChart, chartPayload{
		Title:  strings.TrimSpace(in.Title),
		Kind:   kind,
		XLabel: in.XLabel,
		YLabel: in.YLabel,
		Series: in.Series,
	}), nil
}

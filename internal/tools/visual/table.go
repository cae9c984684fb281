package visual

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/finsight/internal/tools"
	"github.com/haasonsaas/finsight/pkg/models"
)

// maxTableCells bounds the rendered table so a runaway model cannot flood
// the canvas.
const maxTableCells = 10000

// TableTool validates a rectangular data grid into the canvas table
// payload.
type TableTool struct{}

// NewTableTool creates the table tool.
func NewTableTool() *TableTool { return &TableTool{} }

type tableInput struct {
	Title   string     `json:"title" jsonschema:"required,description=Table title shown on the canvas"`
	Columns []string   `json:"columns" jsonschema:"required,description=Column headers"`
	Rows    [][]string `json:"rows" jsonschema:"required,description=Row values; every row must have one cell per column"`
}

type tablePayload struct {
	Title   string     `json:"title"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (t *TableTool) Name() string { return "create_table" }

func (t *TableTool) Description() string {
	return "Create a data table for the canvas. Every row must have exactly one cell per column header."
}

func (t *TableTool) Schema() json.RawMessage {
	return tools.SchemaFor(&tableInput{})
}

func (t *TableTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in tableInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("table title must not be empty")
	}
	if len(in.Columns) == 0 {
		return nil, fmt.Errorf("table needs at least one column")
	}
	if len(in.Rows)*len(in.Columns) > maxTableCells {
		return nil, fmt.Errorf("table exceeds %d cells", maxTableCells)
	}
	for i, row := range in.Rows {
		if len(row) != len(in.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(in.Columns))
		}
	}

	return models.NewOutput(models.OutputTable, tablePayload{
		Title:   strings.TrimSpace(in.Title),
		Columns: in.Columns,
		Rows:    in.Rows,
	}), nil
}

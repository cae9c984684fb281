package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/finsight/internal/tools"
	"github.com/haasonsaas/finsight/pkg/models"
)

const maxSheets = 16

// SpreadsheetTool builds a multi-sheet workbook artifact for the canvas.
type SpreadsheetTool struct{}

// NewSpreadsheetTool creates the spreadsheet tool.
func NewSpreadsheetTool() *SpreadsheetTool { return &SpreadsheetTool{} }

type sheet struct {
	Name    string     `json:"name" jsonschema:"required"`
	Columns []string   `json:"columns" jsonschema:"required"`
	Rows    [][]string `json:"rows" jsonschema:"required"`
}

type spreadsheetInput struct {
	Title  string  `json:"title" jsonschema:"required,description=Workbook title shown on the canvas"`
	Sheets []sheet `json:"sheets" jsonschema:"required,description=At least one sheet"`
}

type spreadsheetPayload struct {
	WorkbookID string  `json:"workbook_id"`
	Title      string  `json:"title"`
	Sheets     []sheet `json:"sheets"`
}

func (t *SpreadsheetTool) Name() string { return "create_spreadsheet" }

func (t *SpreadsheetTool) Description() string {
	return "Create a multi-sheet spreadsheet on the canvas. Every sheet needs a name, column headers and rectangular rows."
}

func (t *SpreadsheetTool) Schema() json.RawMessage {
	return tools.SchemaFor(&spreadsheetInput{})
}

func (t *SpreadsheetTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in spreadsheetInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("workbook title must not be empty")
	}
	if len(in.Sheets) == 0 {
		return nil, fmt.Errorf("workbook needs at least one sheet")
	}
	if len(in.Sheets) > maxSheets {
		return nil, fmt.Errorf("workbook exceeds %d sheets", maxSheets)
	}

	seen := make(map[string]bool, len(in.Sheets))
	for i, s := range in.Sheets {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("sheet %d has no name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate sheet name %q", name)
		}
		seen[name] = true
		if len(s.Columns) == 0 {
			return nil, fmt.Errorf("sheet %q has no columns", name)
		}
		for j, row := range s.Rows {
			if len(row) != len(s.Columns) {
				return nil, fmt.Errorf("sheet %q row %d has %d cells, want %d", name, j, len(row), len(s.Columns))
			}
		}
	}

	return models.NewOutput(models.OutputSpreadsheet, spreadsheetPayload{
		WorkbookID: uuid.NewString(),
		Title:      strings.TrimSpace(in.Title),
		Sheets:     in.Sheets,
	}), nil
}

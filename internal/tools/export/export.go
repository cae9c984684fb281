// Package export builds export descriptors and spreadsheet artifacts.
// Descriptors tell the download pipeline what to materialize; no bytes
// are rendered here.
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

var exportFormats = map[string]string{
	"csv":  ".csv",
	"xlsx": ".xlsx",
	"pdf":  ".pdf",
}

// Tool builds file export descriptors for csv, xlsx and pdf targets.
type Tool struct{}

// New creates the export tool.
func New() *Tool { return &Tool{} }

type exportInput struct {
	Title   string     `json:"title" jsonschema:"required,description=Human-readable export title; also used for the filename"`
	Format  string     `json:"format" jsonschema:"required,description=One of csv xlsx pdf"`
	Columns []string   `json:"columns" jsonschema:"required"`
	Rows    [][]string `json:"rows" jsonschema:"required"`
}

type exportPayload struct {
	ExportID string     `json:"export_id"`
	Title    string     `json:"title"`
	Format   string     `json:"format"`
	Filename string     `json:"filename"`
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
	RowCount int        `json:"row_count"`
}

func (t *Tool) Name() string { return "export_data" }

func (t *Tool) Description() string {
	return "Prepare a downloadable export of tabular data. Formats: csv, xlsx, pdf. Returns a descriptor the client turns into a download."
}

func (t *Tool) Schema() json.RawMessage {
	return tools.SchemaFor(&exportInput{})
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in exportInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	format := strings.ToLower(strings.TrimSpace(in.Format))
	ext, ok := exportFormats[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q", in.Format)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("export title must not be empty")
	}
	if len(in.Columns) == 0 {
		return nil, fmt.Errorf("export needs at least one column")
	}
	for i, row := range in.Rows {
		if len(row) != len(in.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(in.Columns))
		}
	}

	title := strings.TrimSpace(in.Title)
	return models.NewOutput(models.OutputExport, exportPayload{
		ExportID: uuid.NewString(),
		Title:    title,
		Format:   format,
		Filename: slugify(title) + ext,
		Columns:  in.Columns,
		Rows:     in.Rows,
		RowCount: len(in.Rows),
	}), nil
}

// slugify turns a title into a safe filename stem.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

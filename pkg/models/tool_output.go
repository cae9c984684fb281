package models

import (
	"encoding/json"
	"fmt"
)

// OutputType is the closed discriminant set for tool outputs. The stream
// emitter and callers route payloads by this field alone, so every tool
// must produce one of these variants.
type OutputType string

const (
	OutputChart            OutputType = "chart"
	OutputTable            OutputType = "table"
	OutputImage            OutputType = "image"
	OutputExport           OutputType = "export"
	OutputAnalysis         OutputType = "analysis"
	OutputEvaluation       OutputType = "evaluation"
	OutputDocumentAnalysis OutputType = "document_analysis"
	OutputCalculation      OutputType = "calculation"
	OutputSpreadsheet      OutputType = "spreadsheet"
	OutputCitations        OutputType = "citations"
	OutputError            OutputType = "error"
)

// ToolOutput is the tagged envelope every tool executor returns.
type ToolOutput struct {
	Type OutputType      `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// Citations are populated by retrieval-backed tools so the loop can
	// surface them without inspecting Data.
	Citations []Citation `json:"citations,omitempty"`
}

// IsCanvas reports whether this output should be rendered progressively
// on the client canvas.
func (o *ToolOutput) IsCanvas() bool {
	switch o.Type {
	case OutputChart, OutputTable, OutputImage, OutputSpreadsheet:
		return true
	}
	return false
}

// Validate checks the discriminant against the closed variant set.
func (o *ToolOutput) Validate() error {
	switch o.Type {
	case OutputChart, OutputTable, OutputImage, OutputExport,
		OutputAnalysis, OutputEvaluation, OutputDocumentAnalysis,
		OutputCalculation, OutputSpreadsheet, OutputCitations, OutputError:
		return nil
	}
	return fmt.Errorf("unknown tool output type: %q", o.Type)
}

// NewOutput marshals data into a tagged ToolOutput. Marshal failures are
// converted into an error output so tool executors never have to branch.
func NewOutput(t OutputType, data any) *ToolOutput {
	raw, err := json.Marshal(data)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("encode %s output: %v", t, err))
	}
	return &ToolOutput{Type: t, Data: raw}
}

// ErrorOutput builds the error variant with a message payload.
func ErrorOutput(msg string) *ToolOutput {
	raw, _ := json.Marshal(map[string]string{"message": msg})
	return &ToolOutput{Type: OutputError, Data: raw}
}

// Encode renders the output as the string content fed back to the model.
func (o *ToolOutput) Encode() string {
	raw, err := json.Marshal(o)
	if err != nil {
		return `{"type":"error","data":{"message":"unencodable tool output"}}`
	}
	return string(raw)
}

// DecodeOutput parses tool result content back into a ToolOutput. Content
// that is not a tagged envelope is wrapped as an analysis payload so older
// plain-text results keep flowing.
func DecodeOutput(content string) *ToolOutput {
	var out ToolOutput
	if err := json.Unmarshal([]byte(content), &out); err != nil || out.Validate() != nil {
		raw, _ := json.Marshal(map[string]string{"text": content})
		return &ToolOutput{Type: OutputAnalysis, Data: raw}
	}
	return &out
}

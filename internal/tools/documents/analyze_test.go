package documents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/haasonsaas/finsight/internal/knowledge"
	"github.com/haasonsaas/finsight/pkg/models"
)

const sampleDoc = `# FY25 Operating Review

## Revenue
Q2 revenue reached $12,400,000, up 12.5% year over year.

## Costs
Marketing spend rose to $1,200,000 while headcount held flat.
Gross margin landed at 68%.

## Outlook
No figures here, just prose.`

func corpus() *knowledge.MemoryCorpus {
	return knowledge.NewMemoryCorpus(knowledge.Document{
		ID:      "doc-1",
		Name:    "FY25 Operating Review",
		Type:    "report",
		Content: sampleDoc,
	})
}

func TestAnalyzeDocumentByID(t *testing.T) {
	tool := NewAnalyzeTool(corpus())
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"document":"doc-1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != models.OutputDocumentAnalysis {
		t.Fatalf("type = %s", out.Type)
	}

	var payload analyzePayload
	if err := json.Unmarshal(out.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.DocumentName != "FY25 Operating Review" {
		t.Errorf("name = %q", payload.DocumentName)
	}
	if len(payload.Outline) != 4 {
		t.Errorf("outline = %v", payload.Outline)
	}
	if payload.Outline[0] != "FY25 Operating Review" {
		t.Errorf("outline head = %q", payload.Outline[0])
	}
	// Three lines carry figures; the prose line does not.
	if len(payload.Highlights) != 3 {
		t.Errorf("highlights = %v", payload.Highlights)
	}
	if len(out.Citations) != 1 || out.Citations[0].SourceID != "doc-1" {
		t.Errorf("citations = %+v", out.Citations)
	}
}

func TestAnalyzeDocumentByName(t *testing.T) {
	tool := NewAnalyzeTool(corpus())
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"document":"fy25 operating review"}`))
	if err != nil {
		t.Fatal(err)
	}
	var payload analyzePayload
	if err := json.Unmarshal(out.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.DocumentID != "doc-1" {
		t.Errorf("id = %q", payload.DocumentID)
	}
}

func TestAnalyzeDocumentFocusReordersHighlights(t *testing.T) {
	tool := NewAnalyzeTool(corpus())
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"document":"doc-1","focus":"margin"}`))
	if err != nil {
		t.Fatal(err)
	}
	var payload analyzePayload
	if err := json.Unmarshal(out.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Highlights) == 0 || !strings.Contains(payload.Highlights[0], "margin") {
		t.Errorf("focused highlight not first: %v", payload.Highlights)
	}
}

func TestAnalyzeDocumentNotFound(t *testing.T) {
	tool := NewAnalyzeTool(corpus())
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"document":"missing"}`))
	if !errors.Is(err, knowledge.ErrDocumentNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractionKeepsValidUTF8(t *testing.T) {
	// The figure line is longer than the highlight cap and the cut lands
	// inside a two-byte rune; truncation must back up to the boundary.
	line := "Q2: $1,200,000 " + strings.Repeat("ü", 200)
	highlights := extractHighlights(line, "")
	if len(highlights) != 1 {
		t.Fatalf("highlights = %v", highlights)
	}
	if !utf8.ValidString(highlights[0]) {
		t.Errorf("highlight split a multibyte character: %q", highlights[0])
	}
	if len(highlights[0]) > maxHighlightLen+3 {
		t.Errorf("highlight length = %d", len(highlights[0]))
	}

	content := line + "\nx" + strings.Repeat("é", 1500)
	if got := excerptFor(content, ""); !utf8.ValidString(got) {
		t.Error("excerpt split a multibyte character")
	}
}

func TestExcerptForFocusWindow(t *testing.T) {
	excerpt := excerptFor(sampleDoc, "Outlook")
	if !strings.Contains(excerpt, "Outlook") {
		t.Errorf("excerpt missed focus: %q", excerpt)
	}

	head := excerptFor(sampleDoc, "")
	if !strings.HasPrefix(head, "# FY25") {
		t.Errorf("unfocused excerpt should start at head: %q", head)
	}
}

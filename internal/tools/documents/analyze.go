// Package documents implements extractive document analysis over the
// knowledge store.
package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/finsight/internal/knowledge"
	"github.com/haasonsaas/finsight/internal/tools"
	"github.com/haasonsaas/finsight/pkg/models"
)

const (
	maxHighlights    = 12
	maxHighlightLen  = 200
	maxExcerptChars  = 2000
	maxOutlineLevels = 20
)

// figurePattern matches dollar amounts, percentages and large plain
// numbers, which is what an analyst asks about first.
var figurePattern = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?[MBK]?|\d[\d,]*(?:\.\d+)?\s?%|\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b`)

// AnalyzeTool pulls a document from the knowledge store and extracts its
// outline, numeric figures and a focused excerpt. It never calls the
// model; the loop's model interprets the extraction.
type AnalyzeTool struct {
	fetcher knowledge.Fetcher
}

// NewAnalyzeTool creates the tool over the given document fetcher.
func NewAnalyzeTool(fetcher knowledge.Fetcher) *AnalyzeTool {
	return &AnalyzeTool{fetcher: fetcher}
}

type analyzeInput struct {
	Document string `json:"document" jsonschema:"required,description=Document id or exact name"`
	Focus    string `json:"focus,omitempty" jsonschema:"description=Topic to prioritize when extracting highlights"`
}

type analyzePayload struct {
	DocumentID     string   `json:"document_id"`
	DocumentName   string   `json:"document_name"`
	DocumentType   string   `json:"document_type,omitempty"`
	CharacterCount int      `json:"character_count"`
	Outline        []string `json:"outline,omitempty"`
	Highlights     []string `json:"highlights,omitempty"`
	Excerpt        string   `json:"excerpt"`
}

func (t *AnalyzeTool) Name() string { return "analyze_document" }

func (t *AnalyzeTool) Description() string {
	return "Analyze a document from the user's corpus: outline, key figures and a focused excerpt. Pass an optional focus topic to bias the extraction."
}

func (t *AnalyzeTool) Schema() json.RawMessage {
	return tools.SchemaFor(&analyzeInput{})
}

func (t *AnalyzeTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in analyzeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if t.fetcher == nil {
		return nil, fmt.Errorf("document store is not configured")
	}

	doc, err := t.fetcher.Fetch(ctx, in.Document)
	if err != nil {
		return nil, err
	}

	payload := analyzePayload{
		DocumentID:     doc.ID,
		DocumentName:   doc.Name,
		DocumentType:   doc.Type,
		CharacterCount: len(doc.Content),
		Outline:        extractOutline(doc.Content),
		Highlights:     extractHighlights(doc.Content, in.Focus),
		Excerpt:        excerptFor(doc.Content, in.Focus),
	}

	out := models.NewOutput(models.OutputDocumentAnalysis, payload)
	out.Citations = []models.Citation{{
		SourceID:   doc.ID,
		SourceName: doc.Name,
		Excerpt:    payload.Excerpt,
		Score:      1,
	}}
	return out, nil
}

// extractOutline collects markdown-style headings.
func extractOutline(content string) []string {
	var outline []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			outline = append(outline, strings.TrimSpace(strings.TrimLeft(trimmed, "#")))
			if len(outline) >= maxOutlineLevels {
				break
			}
		}
	}
	return outline
}

// extractHighlights returns lines that carry numeric figures. Lines
// matching the focus terms sort ahead of the rest.
func extractHighlights(content, focus string) []string {
	focusTerms := strings.Fields(strings.ToLower(focus))

	var focused, rest []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !figurePattern.MatchString(trimmed) {
			continue
		}
		if len(trimmed) > maxHighlightLen {
			trimmed = trimmed[:cutAtRune(trimmed, maxHighlightLen)] + "..."
		}
		if matchesFocus(trimmed, focusTerms) {
			focused = append(focused, trimmed)
		} else {
			rest = append(rest, trimmed)
		}
	}

	highlights := append(focused, rest...)
	if len(highlights) > maxHighlights {
		highlights = highlights[:maxHighlights]
	}
	return highlights
}

func matchesFocus(line string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(line)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// excerptFor returns the window of the document around the first focus
// hit, or the head of the document when there is no focus.
func excerptFor(content, focus string) string {
	start := 0
	if focus != "" {
		if idx := strings.Index(strings.ToLower(content), strings.ToLower(focus)); idx >= 0 {
			start = idx - maxExcerptChars/4
			if start < 0 {
				start = 0
			}
		}
	}
	start = cutAtRune(content, start)
	end := start + maxExcerptChars
	if end >= len(content) {
		end = len(content)
	} else {
		end = cutAtRune(content, end)
	}
	excerpt := content[start:end]
	if end < len(content) {
		excerpt += "..."
	}
	return excerpt
}

// cutAtRune backs idx up to a rune boundary so slicing never splits a
// multibyte character.
func cutAtRune(s string, idx int) int {
	for idx > 0 && !utf8.RuneStart(s[idx]) {
		idx--
	}
	return idx
}

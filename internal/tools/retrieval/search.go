// Package retrieval exposes the knowledge corpus to the agent loop as a
// search tool.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/finsight/internal/knowledge"
	"github.com/haasonsaas/finsight/internal/tools"
	"github.com/haasonsaas/finsight/pkg/models"
)

const defaultLimit = 5

// SearchTool searches the retrieval collaborator and surfaces hits as
// citations. Retrieval failures and empty result sets degrade to a
// clearly labeled placeholder so the model can still answer.
type SearchTool struct {
	searcher knowledge.Searcher
	limit    int
}

// NewSearchTool creates the tool. limit caps results per query.
func NewSearchTool(searcher knowledge.Searcher, limit int) *SearchTool {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &SearchTool{searcher: searcher, limit: limit}
}

type searchInput struct {
	Query string `json:"query" jsonschema:"required,description=Search query over the user's financial documents"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results"`
	Type  string `json:"type,omitempty" jsonschema:"description=Restrict results to a document type such as report or spreadsheet"`
}

type searchPayload struct {
	Query   string                   `json:"query"`
	Results []knowledge.SearchResult `json:"results"`
	Note    string                   `json:"note,omitempty"`
}

func (t *SearchTool) Name() string { return "search_knowledge" }

func (t *SearchTool) Description() string {
	return "Search the user's uploaded financial documents for relevant passages. Returns ranked excerpts with source citations."
}

func (t *SearchTool) Schema() json.RawMessage {
	return tools.SchemaFor(&searchInput{})
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error) {
	var in searchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	limit := in.Limit
	if limit <= 0 || limit > t.limit {
		limit = t.limit
	}

	if t.searcher == nil {
		return placeholder(in.Query, "knowledge search is not configured"), nil
	}

	results, err := t.searcher.Search(ctx, in.Query, knowledge.SearchOptions{
		Limit: limit,
		Type:  in.Type,
	})
	if err != nil {
		return placeholder(in.Query, "knowledge search is temporarily unavailable"), nil
	}
	if len(results) == 0 {
		return placeholder(in.Query, "no matching documents were found"), nil
	}

	out := models.NewOutput(models.OutputCitations, searchPayload{
		Query:   in.Query,
		Results: results,
	})
	out.Citations = toCitations(results)
	return out, nil
}

// placeholder builds the degraded result set. It is a valid citations
// variant with zero results; the note tells the model why.
func placeholder(query, note string) *models.ToolOutput {
	return models.NewOutput(models.OutputCitations, searchPayload{
		Query:   query,
		Results: []knowledge.SearchResult{},
		Note:    note + "; state clearly in your answer that the document corpus could not be consulted",
	})
}

func toCitations(results []knowledge.SearchResult) []models.Citation {
	citations := make([]models.Citation, len(results))
	for i, r := range results {
		citations[i] = models.Citation{
			SourceID:   r.SourceID,
			SourceName: r.SourceName,
			Excerpt:    r.Excerpt,
			Score:      r.Score,
		}
	}
	return citations
}

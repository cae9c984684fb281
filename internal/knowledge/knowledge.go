// Package knowledge defines the narrow interfaces the orchestration engine
// uses to reach the external knowledge store, plus a small in-memory
// implementation for local runs and tests.
package knowledge

import (
	"context"
	"errors"
)

// ErrDocumentNotFound is returned by Fetcher implementations when no
// document matches the given reference.
var ErrDocumentNotFound = errors.New("document not found")

// SearchResult is one ranked hit from the retrieval collaborator.
type SearchResult struct {
	SourceID   string  `json:"source_id"`
	SourceName string  `json:"source_name"`
	Excerpt    string  `json:"excerpt"`
	Score      float64 `json:"score"`
}

// SearchOptions narrows a retrieval query.
type SearchOptions struct {
	Limit int
	// Type filters results to a document type (e.g. "report", "spreadsheet").
	Type string
}

// Searcher is the retrieval collaborator interface. Implementations rank
// however they like; the engine never depends on the ranking algorithm.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// Context is the synthesized knowledge summary for a user.
type Context struct {
	Summary       string `json:"summary"`
	FullText      string `json:"full_text"`
	DocumentCount int    `json:"document_count"`
}

// ContextProvider fetches the synthesized knowledge context for a user.
// A nil Context with nil error means none is available; the engine must
// treat that as "omit the knowledge block", never as a failure.
type ContextProvider interface {
	UserContext(ctx context.Context, userID string) (*Context, error)
}

// Fetcher retrieves a full document by id or, failing that, by name.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*Document, error)
}

// Document is one entry in the in-memory corpus.
type Document struct {
	ID      string
	Name    string
	Type    string
	Content string
}

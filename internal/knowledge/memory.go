package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// MemoryCorpus is an in-memory Searcher and ContextProvider backed by a
// flat document list. Scoring is plain term overlap; good enough for tests
// and local runs where the real vector store is not wired up.
type MemoryCorpus struct {
	mu   sync.RWMutex
	docs []Document
}

// NewMemoryCorpus creates a corpus seeded with the given documents.
func NewMemoryCorpus(docs ...Document) *MemoryCorpus {
	return &MemoryCorpus{docs: append([]Document(nil), docs...)}
}

// Add appends a document to the corpus.
func (c *MemoryCorpus) Add(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
}

const excerptLength = 300

func (c *MemoryCorpus) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	terms := strings.Fields(strings.ToLower(query))

	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []SearchResult
	for _, doc := range c.docs {
		if opts.Type != "" && doc.Type != opts.Type {
			continue
		}
		score := termOverlap(terms, strings.ToLower(doc.Content))
		if score <= 0 {
			continue
		}
		excerpt := doc.Content
		if len(excerpt) > excerptLength {
			cut := excerptLength
			for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
				cut--
			}
			excerpt = excerpt[:cut] + "..."
		}
		results = append(results, SearchResult{
			SourceID:   doc.ID,
			SourceName: doc.Name,
			Excerpt:    excerpt,
			Score:      score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Fetch resolves ref against document ids first, then names
// (case-insensitive).
func (c *MemoryCorpus) Fetch(ctx context.Context, ref string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.docs {
		if c.docs[i].ID == ref {
			doc := c.docs[i]
			return &doc, nil
		}
	}
	for i := range c.docs {
		if strings.EqualFold(c.docs[i].Name, ref) {
			doc := c.docs[i]
			return &doc, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDocumentNotFound, ref)
}

func (c *MemoryCorpus) UserContext(ctx context.Context, userID string) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.docs) == 0 {
		return nil, nil
	}

	var names []string
	var full strings.Builder
	for _, doc := range c.docs {
		names = append(names, doc.Name)
		fmt.Fprintf(&full, "## %s\n%s\n\n", doc.Name, doc.Content)
	}
	return &Context{
		Summary:       "Available documents: " + strings.Join(names, ", "),
		FullText:      full.String(),
		DocumentCount: len(c.docs),
	}, nil
}

func termOverlap(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	matched := 0
	for _, term := range terms {
		if strings.Contains(content, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

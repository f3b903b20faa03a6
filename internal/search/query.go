package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Params configures a library search.
type Params struct {
	Query    string // User's search text
	Language string // Exact language filter, empty = all

	// Pagination
	Limit  int
	Offset int
}

// DefaultParams returns sensible defaults.
func DefaultParams() Params {
	return Params{Limit: 20}
}

// Result holds the search outcome.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit is a single matching book.
type Hit struct {
	UniqueID   string            `json:"unique_id"`
	Score      float64           `json:"score"`
	Title      string            `json:"title"`
	Author     string            `json:"author,omitempty"`
	Language   string            `json:"language,omitempty"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Search executes a library search.
func (s *Index) Search(ctx context.Context, params Params) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = 20
	}

	searchRequest := bleve.NewSearchRequestOptions(buildQuery(params), params.Limit, params.Offset, false)
	searchRequest.Fields = []string{"unique_id", "title", "author", "language"}
	searchRequest.Highlight = bleve.NewHighlight()
	searchRequest.Highlight.AddField("title")
	searchRequest.Highlight.AddField("author")

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(searchResult.Hits)),
	}

	for _, match := range searchResult.Hits {
		hit := Hit{
			UniqueID: match.ID,
			Score:    match.Score,
		}
		if title, ok := match.Fields["title"].(string); ok {
			hit.Title = title
		}
		if author, ok := match.Fields["author"].(string); ok {
			hit.Author = author
		}
		if language, ok := match.Fields["language"].(string); ok {
			hit.Language = language
		}
		if len(match.Fragments) > 0 {
			hit.Highlights = make(map[string]string, len(match.Fragments))
			for field, fragments := range match.Fragments {
				if len(fragments) > 0 {
					hit.Highlights[field] = fragments[0]
				}
			}
		}
		result.Hits = append(result.Hits, hit)
	}

	return result, nil
}

// buildQuery combines field-boosted matches over title, author,
// description, and section content. Title matches rank highest,
// content matches lowest, so a book mentioning a title beats a book
// merely containing the words.
func buildQuery(params Params) query.Query {
	text := strings.TrimSpace(params.Query)

	var base query.Query
	if text == "" {
		base = bleve.NewMatchAllQuery()
	} else {
		titleQuery := bleve.NewMatchQuery(text)
		titleQuery.SetField("title")
		titleQuery.SetBoost(3.0)

		authorQuery := bleve.NewMatchQuery(text)
		authorQuery.SetField("author")
		authorQuery.SetBoost(2.0)

		descQuery := bleve.NewMatchQuery(text)
		descQuery.SetField("description")

		contentQuery := bleve.NewMatchQuery(text)
		contentQuery.SetField("content")
		contentQuery.SetBoost(0.5)

		// Prefix match helps while the user is still typing.
		prefixQuery := bleve.NewPrefixQuery(strings.ToLower(text))
		prefixQuery.SetField("title")

		base = bleve.NewDisjunctionQuery(titleQuery, authorQuery, descQuery, contentQuery, prefixQuery)
	}

	if params.Language == "" {
		return base
	}

	languageQuery := bleve.NewTermQuery(params.Language)
	languageQuery.SetField("language")
	return bleve.NewConjunctionQuery(base, languageQuery)
}

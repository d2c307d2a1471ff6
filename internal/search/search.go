// Package search answers free-text queries over everything the engine has
// indexed: events and derived patterns, ranked by semantic similarity.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/Kubana90/operator-996-cognitive-os/internal/embedding"
	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

// Searcher runs ranked semantic lookups against the embedding index.
type Searcher struct {
	index *embedding.Index
}

// NewSearcher creates a searcher over the given index.
func NewSearcher(index *embedding.Index) *Searcher {
	return &Searcher{index: index}
}

// Search returns up to limit results ranked by similarity descending. Ties
// rank events before patterns, then older entries first. An empty query is a
// validation error; an empty index yields an empty result, not an error.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &types.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if limit <= 0 {
		limit = 10
	}

	timer := logging.StartTimer(logging.CategorySearch, "Search")
	defer timer.Stop()

	matches := s.index.Nearest(ctx, query, limit, types.SourceEvent, types.SourcePattern)

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if matches[i].Kind != matches[j].Kind {
			return matches[i].Kind == types.SourceEvent
		}
		return matches[i].Seq < matches[j].Seq
	})

	out := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, types.SearchResult{
			SourceKind: m.Kind,
			SourceID:   m.Key,
			Content:    m.Text,
			Similarity: m.Similarity,
		})
	}

	logging.Search("Search %q returned %d results", query, len(out))
	return out, nil
}

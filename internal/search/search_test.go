package search

import (
	"context"
	"testing"
	"time"

	"github.com/Kubana90/operator-996-cognitive-os/internal/embedding"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

func newTestSearcher(t *testing.T) (*Searcher, *embedding.Index) {
	t.Helper()
	ix := embedding.NewIndex(embedding.NewHashEngine(), 2*time.Second, 2)
	return NewSearcher(ix), ix
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s, _ := newTestSearcher(t)

	for _, q := range []string{"", "  "} {
		if _, err := s.Search(context.Background(), q, 10); !types.IsValidation(err) {
			t.Errorf("query %q: expected validation error, got %v", q, err)
		}
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	s, _ := newTestSearcher(t)

	got, err := s.Search(context.Background(), "anything at all", 10)
	if err != nil {
		t.Fatalf("empty index must not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestSearchRankingAndLimit(t *testing.T) {
	s, ix := newTestSearcher(t)
	ctx := context.Background()

	ix.Upsert(ctx, "e1", types.SourceEvent, "decision consolidate the monitoring stack")
	ix.Upsert(ctx, "e2", types.SourceEvent, "decision consolidate monitoring dashboards")
	ix.Upsert(ctx, "e3", types.SourceEvent, "communication birthday card for a colleague")

	got, err := s.Search(ctx, "consolidate monitoring", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit not honored: got %d results", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Errorf("results not sorted descending at %d", i)
		}
	}
	for _, r := range got {
		if r.SourceID == "e3" {
			t.Error("unrelated record ranked above related ones")
		}
	}
}

func TestSearchTieBreakEventsBeforePatterns(t *testing.T) {
	s, ix := newTestSearcher(t)
	ctx := context.Background()

	// Identical text gives identical similarity for both kinds. The pattern
	// is inserted first so insertion order alone would rank it ahead.
	ix.Upsert(ctx, "pat", types.SourcePattern, "release cadence weekly")
	ix.Upsert(ctx, "evt", types.SourceEvent, "release cadence weekly")

	got, err := s.Search(ctx, "release cadence weekly", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].SourceKind != types.SourceEvent {
		t.Errorf("equal similarity must rank the event first, got %v", got[0].SourceKind)
	}
}

func TestSearchCoversBothKinds(t *testing.T) {
	s, ix := newTestSearcher(t)
	ctx := context.Background()

	ix.Upsert(ctx, "e1", types.SourceEvent, "quarterly portfolio rebalance")
	ix.Upsert(ctx, "domain:trading", types.SourcePattern, "domain trading portfolio rebalance")

	got, err := s.Search(ctx, "portfolio rebalance", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	kinds := map[types.SourceKind]bool{}
	for _, r := range got {
		kinds[r.SourceKind] = true
		if r.Content == "" {
			t.Error("results must carry their source content")
		}
	}
	if !kinds[types.SourceEvent] || !kinds[types.SourcePattern] {
		t.Errorf("search should span events and patterns, got %v", kinds)
	}
}

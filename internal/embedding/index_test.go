package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

// failingEngine simulates a down backend: every embed call errors.
type failingEngine struct{}

func (failingEngine) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func (failingEngine) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("connection refused")
}

func (failingEngine) Dimensions() int { return 0 }
func (failingEngine) Name() string    { return "failing" }

func newTestIndex() *Index {
	return NewIndex(NewHashEngine(), 2*time.Second, 2)
}

func TestUpsertAndNearest(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	items := []Item{
		{Key: "e1", Kind: types.SourceEvent, Text: "decision migrate the billing service to go"},
		{Key: "e2", Kind: types.SourceEvent, Text: "decision rewrite billing service in go"},
		{Key: "e3", Kind: types.SourceEvent, Text: "communication weekly newsletter draft"},
	}
	if err := ix.UpsertBatch(ctx, items); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if ix.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", ix.Len())
	}

	got := ix.Nearest(ctx, "billing service in go", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	// Both billing events should outrank the newsletter.
	for _, m := range got {
		if m.Key == "e3" {
			t.Errorf("unrelated record ranked in top 2: %v", got)
		}
	}
	// Sorted descending.
	if got[0].Similarity < got[1].Similarity {
		t.Errorf("results not sorted by similarity: %v", got)
	}
}

func TestNearestKindFilter(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	ix.Upsert(ctx, "e1", types.SourceEvent, "shipping cadence discussion")
	ix.Upsert(ctx, "p1", types.SourcePattern, "shipping cadence pattern")

	got := ix.Nearest(ctx, "shipping cadence", 10, types.SourcePattern)
	if len(got) != 1 || got[0].Kind != types.SourcePattern {
		t.Errorf("kind filter leaked other kinds: %v", got)
	}

	got = ix.Nearest(ctx, "shipping cadence", 10)
	if len(got) != 2 {
		t.Errorf("no kind filter should match everything, got %d", len(got))
	}
}

func TestUpsertWithDownBackend(t *testing.T) {
	ix := NewIndex(failingEngine{}, time.Second, 2)
	ctx := context.Background()

	err := ix.Upsert(ctx, "e1", types.SourceEvent, "decision adopt feature flags")
	if !IsUnavailable(err) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	// The record is still stored for lexical lookups.
	if !ix.Has("e1") {
		t.Fatal("failed upsert should still store the record")
	}
}

func TestNearestDegradesToLexical(t *testing.T) {
	ix := NewIndex(failingEngine{}, time.Second, 2)
	ctx := context.Background()

	ix.Upsert(ctx, "e1", types.SourceEvent, "decision adopt feature flags for rollouts")
	ix.Upsert(ctx, "e2", types.SourceEvent, "interaction lunch with the design team")

	got := ix.Nearest(ctx, "feature flags rollouts", 1)
	if len(got) != 1 {
		t.Fatalf("lexical fallback returned %d matches", len(got))
	}
	if got[0].Key != "e1" {
		t.Errorf("lexical fallback ranked wrong record first: %v", got)
	}
	if got[0].Similarity <= 0 {
		t.Errorf("overlapping tokens should give positive similarity, got %v", got[0].Similarity)
	}
}

func TestNearestTieBreaksByInsertionOrder(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	// Identical texts produce identical vectors and so identical similarity.
	ix.Upsert(ctx, "first", types.SourceEvent, "identical entry text")
	ix.Upsert(ctx, "second", types.SourceEvent, "identical entry text")

	got := ix.Nearest(ctx, "identical entry text", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].Key != "first" {
		t.Errorf("equal similarity must rank earlier insertion first, got %s", got[0].Key)
	}
}

func TestNearestTieBreaksEventsBeforePatterns(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	// The pattern is inserted first, so seq order alone would keep it and
	// drop the equally similar event at the truncation boundary.
	ix.Upsert(ctx, "p1", types.SourcePattern, "quarterly planning ritual")
	ix.Upsert(ctx, "e1", types.SourceEvent, "quarterly planning ritual")

	got := ix.Nearest(ctx, "quarterly planning ritual", 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].Kind != types.SourceEvent || got[0].Key != "e1" {
		t.Errorf("equal similarity must rank the event first, got %v", got[0])
	}
}

func TestReplaceKind(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	ix.Upsert(ctx, "e1", types.SourceEvent, "an event stays put")
	ix.Upsert(ctx, "old-pattern", types.SourcePattern, "old pattern")

	err := ix.ReplaceKind(ctx, types.SourcePattern, []Item{
		{Key: "new-pattern", Kind: types.SourcePattern, Text: "new pattern"},
	})
	if err != nil {
		t.Fatalf("ReplaceKind failed: %v", err)
	}

	if ix.Has("old-pattern") {
		t.Error("replaced kind should drop old records")
	}
	if !ix.Has("new-pattern") || !ix.Has("e1") {
		t.Error("ReplaceKind must keep other kinds and insert new items")
	}
}

func TestKeySimilarity(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	ix.Upsert(ctx, "a", types.SourceEvent, "deploy the api gateway")
	ix.Upsert(ctx, "b", types.SourceEvent, "deploy the api gateway")
	ix.Upsert(ctx, "c", types.SourceEvent, "plan the holiday schedule")

	same, ok := ix.KeySimilarity("a", "b")
	if !ok || same < 0.99 {
		t.Errorf("identical texts: got %v, %v", same, ok)
	}
	diff, ok := ix.KeySimilarity("a", "c")
	if !ok || diff >= same {
		t.Errorf("unrelated texts should score lower: %v vs %v", diff, same)
	}
	if _, ok := ix.KeySimilarity("a", "missing"); ok {
		t.Error("unknown key should report not-found")
	}
}

func TestSimilarityFallsBackWhenBackendDown(t *testing.T) {
	ix := NewIndex(failingEngine{}, time.Second, 2)
	sim := ix.Similarity(context.Background(), "review the budget", "review the budget")
	if sim != 1.0 {
		t.Errorf("lexical fallback on identical texts should be 1.0, got %v", sim)
	}
}

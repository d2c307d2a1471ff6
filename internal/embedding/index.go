package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// EMBEDDING INDEX
// =============================================================================

// Record maps a source item (event id or pattern name) to its vector. A
// record without a vector (backend down at upsert time) still participates
// in lookups through the lexical fallback.
type Record struct {
	Key    string
	Kind   types.SourceKind
	Text   string
	Vector []float32

	seq int // insertion order, used for tie-breaking
}

// Match is a single nearest-neighbor result.
type Match struct {
	Key        string
	Kind       types.SourceKind
	Text       string
	Similarity float64
	Seq        int
}

// Item is an upsert request for batch operations.
type Item struct {
	Key  string
	Kind types.SourceKind
	Text string
}

// Index holds embedding records and answers nearest-neighbor queries. It is
// a derived cache: safely rebuildable from the event store and latest
// pattern set at any time. Embedding calls are bounded by the configured
// timeout; on failure the index degrades to lexical-overlap similarity
// instead of hanging or hard-failing.
type Index struct {
	mu      sync.RWMutex
	engine  Engine
	timeout time.Duration
	workers int
	records []*Record
	byKey   map[string]*Record
	nextSeq int
}

// NewIndex creates an index over the given engine. workers bounds the batch
// embed pool; timeout bounds each backend call.
func NewIndex(engine Engine, timeout time.Duration, workers int) *Index {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Index{
		engine:  engine,
		timeout: timeout,
		workers: workers,
		byKey:   make(map[string]*Record),
	}
}

// embed calls the engine with the index timeout, mapping every failure to
// ErrEmbeddingUnavailable so callers can classify it.
func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	vec, err := ix.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

// Upsert computes and stores a vector for the key. When the backend is
// unavailable the record is still stored (text only, lexical fallback
// applies) and the wrapped ErrEmbeddingUnavailable is returned so the caller
// can log the degradation.
func (ix *Index) Upsert(ctx context.Context, key string, kind types.SourceKind, text string) error {
	vec, err := ix.embed(ctx, text)
	if err != nil {
		logging.EmbeddingWarn("Upsert %s: backend unavailable, storing record for lexical fallback: %v", key, err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.put(key, kind, text, vec)
	return err
}

// put inserts or replaces a record. Caller holds the write lock. Replacing
// keeps the original insertion order.
func (ix *Index) put(key string, kind types.SourceKind, text string, vec []float32) {
	if existing, ok := ix.byKey[key]; ok {
		existing.Kind = kind
		existing.Text = text
		existing.Vector = vec
		return
	}
	rec := &Record{Key: key, Kind: kind, Text: text, Vector: vec, seq: ix.nextSeq}
	ix.nextSeq++
	ix.byKey[key] = rec
	ix.records = append(ix.records, rec)
}

// UpsertBatch embeds the items on a bounded worker pool. Synchronous from
// the caller's point of view: every item is stored before return. Returns
// ErrEmbeddingUnavailable (wrapped) if any embedding failed; failed items
// are stored text-only.
func (ix *Index) UpsertBatch(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	timer := logging.StartTimer(logging.CategoryEmbedding, "UpsertBatch")
	defer timer.Stop()

	vectors := make([][]float32, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	var failedMu sync.Mutex
	var failed error
	for i := range items {
		i := i
		g.Go(func() error {
			vec, err := ix.embed(gctx, items[i].Text)
			if err != nil {
				// Record the degradation but keep the batch going.
				failedMu.Lock()
				failed = err
				failedMu.Unlock()
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ix.mu.Lock()
	for i, item := range items {
		ix.put(item.Key, item.Kind, item.Text, vectors[i])
	}
	ix.mu.Unlock()

	if failed != nil {
		logging.EmbeddingWarn("UpsertBatch: %d items stored, some without vectors: %v", len(items), failed)
	}
	return failed
}

// ReplaceKind drops every record of the given kind and inserts the items.
// Patterns are re-embedded wholesale each detection pass: correctness over
// efficiency, since pattern counts are small.
func (ix *Index) ReplaceKind(ctx context.Context, kind types.SourceKind, items []Item) error {
	ix.mu.Lock()
	kept := ix.records[:0]
	for _, rec := range ix.records {
		if rec.Kind == kind {
			delete(ix.byKey, rec.Key)
			continue
		}
		kept = append(kept, rec)
	}
	ix.records = kept
	ix.mu.Unlock()

	return ix.UpsertBatch(ctx, items)
}

// Nearest returns up to k records most similar to the query, sorted by
// similarity descending with ties broken by insertion order. An empty kinds
// list matches every kind. If the backend is unavailable the whole lookup
// degrades to lexical-overlap similarity; the user-facing operation never
// hard-fails on a down backend.
func (ix *Index) Nearest(ctx context.Context, query string, k int, kinds ...types.SourceKind) []Match {
	if k <= 0 {
		k = 10
	}

	queryVec, err := ix.embed(ctx, query)
	if err != nil {
		logging.EmbeddingWarn("Nearest: degrading to lexical similarity: %v", err)
		queryVec = nil
	}
	querySet := TokenSet(query)

	kindOK := func(kind types.SourceKind) bool {
		if len(kinds) == 0 {
			return true
		}
		for _, want := range kinds {
			if kind == want {
				return true
			}
		}
		return false
	}

	ix.mu.RLock()
	matches := make([]Match, 0, len(ix.records))
	for _, rec := range ix.records {
		if !kindOK(rec.Kind) {
			continue
		}

		var sim float64
		if queryVec != nil && rec.Vector != nil {
			sim, err = CosineSimilarity(queryVec, rec.Vector)
			if err != nil {
				continue
			}
		} else {
			sim = Jaccard(querySet, TokenSet(rec.Text))
		}

		matches = append(matches, Match{
			Key:        rec.Key,
			Kind:       rec.Kind,
			Text:       rec.Text,
			Similarity: sim,
			Seq:        rec.seq,
		})
	}
	ix.mu.RUnlock()

	// Ties break the same way search presents results: events before
	// patterns, then insertion order. Truncating to k would otherwise decide
	// equal-similarity boundary cases by seq alone.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if ri, rj := kindRank(matches[i].Kind), kindRank(matches[j].Kind); ri != rj {
			return ri < rj
		}
		return matches[i].Seq < matches[j].Seq
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// kindRank orders source kinds for tie-breaking: events rank ahead of
// patterns.
func kindRank(k types.SourceKind) int {
	if k == types.SourceEvent {
		return 0
	}
	return 1
}

// Similarity computes the similarity of two texts, degrading to lexical
// overlap when the backend is down.
func (ix *Index) Similarity(ctx context.Context, a, b string) float64 {
	vecA, errA := ix.embed(ctx, a)
	vecB, errB := ix.embed(ctx, b)
	if errA == nil && errB == nil {
		if sim, err := CosineSimilarity(vecA, vecB); err == nil {
			return sim
		}
	}
	return LexicalSimilarity(a, b)
}

// KeySimilarity computes the similarity between two already-indexed records
// using their stored vectors, falling back to lexical overlap of the stored
// texts. The second return is false if either key is unknown.
func (ix *Index) KeySimilarity(keyA, keyB string) (float64, bool) {
	ix.mu.RLock()
	recA, okA := ix.byKey[keyA]
	recB, okB := ix.byKey[keyB]
	ix.mu.RUnlock()

	if !okA || !okB {
		return 0, false
	}

	if recA.Vector != nil && recB.Vector != nil {
		if sim, err := CosineSimilarity(recA.Vector, recB.Vector); err == nil {
			return sim, true
		}
	}
	return LexicalSimilarity(recA.Text, recB.Text), true
}

// Has reports whether a key is indexed.
func (ix *Index) Has(key string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.byKey[key]
	return ok
}

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// EngineName reports the backing engine, for health output.
func (ix *Index) EngineName() string {
	return ix.engine.Name()
}

// Ping verifies the backend is reachable, using the engine's health check
// when it has one and a probe embed otherwise.
func (ix *Index) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	if hc, ok := ix.engine.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	_, err := ix.engine.Embed(ctx, "ping")
	return err
}

// IsUnavailable reports whether err indicates a down embedding backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, types.ErrEmbeddingUnavailable)
}

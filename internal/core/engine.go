// Package core wires the engine together: the event store, embedding index,
// pattern detector, anomaly scanner, scenario simulator, and semantic search
// behind one facade. All externally triggered operations go through Engine;
// the HTTP layer and the CLI are thin callers.
package core

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Kubana90/operator-996-cognitive-os/internal/anomaly"
	"github.com/Kubana90/operator-996-cognitive-os/internal/config"
	"github.com/Kubana90/operator-996-cognitive-os/internal/embedding"
	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/patterns"
	"github.com/Kubana90/operator-996-cognitive-os/internal/profile"
	"github.com/Kubana90/operator-996-cognitive-os/internal/search"
	"github.com/Kubana90/operator-996-cognitive-os/internal/simulate"
	"github.com/Kubana90/operator-996-cognitive-os/internal/store"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

// Engine is the cognitive analytics facade.
type Engine struct {
	cfg       *config.Config
	profile   types.CognitiveProfile
	store     *store.EventStore
	sink      *store.Sink
	index     *embedding.Index
	detector  *patterns.Detector
	scanner   *anomaly.Scanner
	simulator *simulate.Simulator
	searcher  *search.Searcher
	hub       *Hub
	createdAt time.Time

	// Latest derived results, replaced wholesale by each pass.
	mu        sync.RWMutex
	patterns  []types.Pattern
	anomalies []types.Anomaly
}

// New builds an engine from configuration: profile seed, durable sink (when
// configured), event store, embedding index, and the analysis components.
// Events recovered from the sink are re-indexed before New returns.
func New(cfg *config.Config) (*Engine, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "core.New")
	defer timer.Stop()

	prof, err := profile.Load(cfg.Profile.SeedPath)
	if err != nil {
		return nil, err
	}

	var sink *store.Sink
	if cfg.Storage.DatabasePath != "" {
		sink, err = store.OpenSink(cfg.Storage.DatabasePath)
		if err != nil {
			// The in-memory store is authoritative; run without persistence.
			logging.StoreWarn("Durable sink unavailable, continuing in-memory: %v", err)
			sink = nil
		}
	}

	eventStore := store.NewEventStoreFromSink(sink)

	eng, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
	})
	if err != nil {
		return nil, err
	}
	index := embedding.NewIndex(eng, cfg.Embedding.EmbedTimeout(), cfg.Embedding.Workers)

	e := &Engine{
		cfg:       cfg,
		profile:   prof,
		store:     eventStore,
		sink:      sink,
		index:     index,
		detector:  patterns.NewDetector(cfg.Detector, index),
		scanner:   anomaly.NewScanner(cfg.Scanner, index),
		simulator: simulate.NewSimulator(cfg.Simulator, index, prof),
		searcher:  search.NewSearcher(index),
		hub:       NewHub(cfg.Server.BroadcastBuffer),
		createdAt: time.Now().UTC(),
	}

	if recovered := eventStore.Snapshot(); len(recovered) > 0 {
		items := make([]embedding.Item, len(recovered))
		for i, ev := range recovered {
			items[i] = embedding.Item{Key: ev.ID, Kind: types.SourceEvent, Text: ev.SearchText()}
		}
		if err := index.UpsertBatch(context.Background(), items); err != nil {
			logging.EmbeddingWarn("Recovered events indexed with degraded vectors: %v", err)
		}
		logging.Boot("Re-indexed %d recovered events", len(recovered))
	}

	logging.Boot("Engine ready: subject=%s, provider=%s, events=%d",
		cfg.Subject, index.EngineName(), eventStore.Len())
	return e, nil
}

// AddEvent validates, stores, and indexes a single event. Indexing is
// synchronous: once AddEvent returns, the event is visible to search and
// simulation. A down embedding backend degrades the index entry, never the
// append.
func (e *Engine) AddEvent(ctx context.Context, spec types.EventSpec) (types.BehavioralEvent, error) {
	id, err := e.store.Append(spec)
	if err != nil {
		return types.BehavioralEvent{}, err
	}

	event, err := e.store.Get(id)
	if err != nil {
		return types.BehavioralEvent{}, err
	}

	if err := e.index.Upsert(ctx, event.ID, types.SourceEvent, event.SearchText()); err != nil {
		logging.EmbeddingWarn("Event %s indexed without vector: %v", event.ID, err)
	}

	e.hub.Publish(Update{Type: "event", Data: event})
	return event, nil
}

// BulkImport appends every valid spec and indexes the batch. Per-item
// failures are reported alongside the successes; one malformed item never
// aborts the rest.
func (e *Engine) BulkImport(ctx context.Context, specs []types.EventSpec) ([]string, []error) {
	ids, errs := e.store.BulkImport(specs)

	items := make([]embedding.Item, 0, len(ids))
	for _, id := range ids {
		if ev, err := e.store.Get(id); err == nil {
			items = append(items, embedding.Item{Key: ev.ID, Kind: types.SourceEvent, Text: ev.SearchText()})
		}
	}
	if err := e.index.UpsertBatch(ctx, items); err != nil {
		logging.EmbeddingWarn("Bulk import indexed with degraded vectors: %v", err)
	}

	if len(ids) > 0 {
		e.hub.Publish(Update{Type: "event", Data: map[string]int{"imported": len(ids)}})
	}
	return ids, errs
}

// GetEvent returns a single event by id.
func (e *Engine) GetEvent(id string) (types.BehavioralEvent, error) {
	return e.store.Get(id)
}

// ListEvents returns events matching the filter, time-ordered.
func (e *Engine) ListEvents(f types.Filter) []types.BehavioralEvent {
	return e.store.List(f)
}

// EventCount returns the number of stored events.
func (e *Engine) EventCount() int {
	return e.store.Len()
}

// DetectPatterns recomputes the pattern set from the current event snapshot.
// Results replace the previous set wholesale: pattern confidence is always a
// statement about the snapshot it was computed from. The new patterns are
// re-embedded, back-referenced onto their supporting events, persisted best
// effort, and broadcast.
func (e *Engine) DetectPatterns(ctx context.Context) []types.Pattern {
	snapshot := e.store.Snapshot()
	found := e.detector.Detect(ctx, snapshot)

	items := make([]embedding.Item, len(found))
	byEvent := make(map[string][]string)
	for i, p := range found {
		items[i] = embedding.Item{Key: p.Name, Kind: types.SourcePattern, Text: patternText(p)}
		for _, id := range p.SupportingEventIDs {
			byEvent[id] = append(byEvent[id], p.Name)
		}
	}
	if err := e.index.ReplaceKind(ctx, types.SourcePattern, items); err != nil {
		logging.EmbeddingWarn("Patterns indexed with degraded vectors: %v", err)
	}

	e.store.ClearPatternIDs()
	for id, names := range byEvent {
		if err := e.store.SetPatternIDs(id, names); err != nil {
			logging.StoreWarn("Failed to back-reference patterns on event %s: %v", id, err)
		}
	}

	if e.sink != nil {
		if err := e.sink.ReplacePatterns(found); err != nil {
			logging.StoreWarn("Failed to persist patterns: %v", err)
		}
	}

	e.mu.Lock()
	e.patterns = found
	e.mu.Unlock()

	e.hub.Publish(Update{Type: "patterns", Data: found})
	return found
}

// DetectAnomalies scans the current snapshot against the latest pattern set.
// Findings are point-in-time: each scan reflects only the snapshot it ran
// over.
func (e *Engine) DetectAnomalies(ctx context.Context) []types.Anomaly {
	snapshot := e.store.Snapshot()
	found := e.scanner.Scan(ctx, &anomaly.Input{
		Events:   snapshot,
		Patterns: e.Patterns(),
		Now:      time.Now().UTC(),
	})

	if e.sink != nil && len(found) > 0 {
		if err := e.sink.SaveAnomalies(found); err != nil {
			logging.StoreWarn("Failed to persist anomalies: %v", err)
		}
	}

	e.mu.Lock()
	e.anomalies = found
	e.mu.Unlock()

	e.hub.Publish(Update{Type: "anomalies", Data: found})
	return found
}

// Patterns returns the latest detection results.
func (e *Engine) Patterns() []types.Pattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]types.Pattern(nil), e.patterns...)
}

// Anomalies returns the latest scan results.
func (e *Engine) Anomalies() []types.Anomaly {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]types.Anomaly(nil), e.anomalies...)
}

// Simulate predicts the likely decision for a hypothetical scenario.
func (e *Engine) Simulate(ctx context.Context, scenario string) (*types.Prediction, error) {
	return e.simulator.Simulate(ctx, scenario, e.store.Snapshot(), e.Patterns(), e.Anomalies())
}

// Search runs a ranked semantic query over events and patterns.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	return e.searcher.Search(ctx, query, limit)
}

// Profile returns the seed cognitive profile.
func (e *Engine) Profile() types.CognitiveProfile {
	return e.profile
}

// Subscribe registers a live-update listener.
func (e *Engine) Subscribe() (<-chan Update, func()) {
	return e.hub.Subscribe()
}

// Export returns a full state snapshot suitable for backup or transfer.
func (e *Engine) Export() types.Snapshot {
	return types.Snapshot{
		Metadata: types.Metadata{
			Subject:   e.cfg.Subject,
			Version:   e.cfg.Version,
			CreatedAt: e.createdAt,
		},
		Profile:    e.profile,
		Events:     e.store.Snapshot(),
		Patterns:   e.Patterns(),
		Anomalies:  e.Anomalies(),
		ExportedAt: time.Now().UTC(),
	}
}

// Health reports the engine's operational state.
type Health struct {
	Status      string `json:"status"`
	Subject     string `json:"subject"`
	Version     string `json:"version"`
	Events      int    `json:"events"`
	Patterns    int    `json:"patterns"`
	Anomalies   int    `json:"anomalies"`
	Embedding   string `json:"embedding"`
	Subscribers int    `json:"subscribers"`
}

// HealthCheck summarizes the engine state. The engine is "ok" even when the
// embedding backend is degraded; analysis falls back to lexical similarity.
func (e *Engine) HealthCheck(ctx context.Context) Health {
	embeddingStatus := e.index.EngineName()
	if err := e.index.Ping(ctx); err != nil {
		embeddingStatus += " (degraded: lexical fallback)"
	}
	return Health{
		Status:      "ok",
		Subject:     e.cfg.Subject,
		Version:     e.cfg.Version,
		Events:      e.store.Len(),
		Patterns:    len(e.Patterns()),
		Anomalies:   len(e.Anomalies()),
		Embedding:   embeddingStatus,
		Subscribers: e.hub.Subscribers(),
	}
}

// Close releases the durable sink.
func (e *Engine) Close() error {
	if e.sink != nil {
		return e.sink.Close()
	}
	return nil
}

// patternText is the canonical text indexed for a pattern: its name plus the
// theme and domain vocabulary, so searches hit the pattern's subject matter
// and not just its label.
func patternText(p types.Pattern) string {
	parts := []string{strings.ReplaceAll(p.Name, ":", " ")}
	for _, tok := range sortedKeys(p.Themes) {
		parts = append(parts, tok)
	}
	for _, tok := range sortedKeys(p.Domains) {
		parts = append(parts, tok)
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

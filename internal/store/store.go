// Package store implements the append-only EventStore: the time-ordered
// substrate all analysis reads. Appends are serialized; readers always see a
// consistent snapshot as of their call. Events are never deleted or mutated
// by callers - corrections are modeled as new events referencing the old one
// via a tag.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
	"github.com/google/uuid"
)

// EventStore owns all BehavioralEvent records. The in-memory slice is the
// source of truth; the optional Sink mirrors appends best-effort.
type EventStore struct {
	mu     sync.RWMutex
	events []types.BehavioralEvent
	byID   map[string]int
	sink   *Sink
}

// NewEventStore creates an empty store. sink may be nil (in-memory only).
func NewEventStore(sink *Sink) *EventStore {
	return &EventStore{
		byID: make(map[string]int),
		sink: sink,
	}
}

// NewEventStoreFromSink creates a store preloaded with events persisted by a
// previous run. A load failure degrades to an empty store.
func NewEventStoreFromSink(sink *Sink) *EventStore {
	s := NewEventStore(sink)
	if sink == nil {
		return s
	}

	events, err := sink.LoadEvents()
	if err != nil {
		logging.StoreWarn("Failed to load events from sink: %v", err)
		return s
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.byID[e.ID] = len(s.events)
		s.events = append(s.events, e)
	}
	logging.Store("Loaded %d events from durable sink", len(events))
	return s
}

// Append validates the spec, assigns an id, and stores the event. The
// timestamp defaults to ingestion time when zero. Returns the new event id.
func (s *EventStore) Append(spec types.EventSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	ts := spec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	event := types.BehavioralEvent{
		ID:            uuid.NewString(),
		EventType:     spec.EventType,
		Description:   spec.Description,
		Timestamp:     ts,
		DecisionLogic: spec.DecisionLogic,
		Outcome:       spec.Outcome,
		Tags:          append([]string(nil), spec.Tags...),
	}

	s.mu.Lock()
	s.byID[event.ID] = len(s.events)
	s.events = append(s.events, event)
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.SaveEvent(event); err != nil {
			// Best effort: the in-memory store is authoritative.
			logging.StoreWarn("Failed to persist event %s: %v", event.ID, err)
		}
	}

	logging.StoreDebug("Event appended: %s (%s)", event.ID, event.EventType)
	return event.ID, nil
}

// Get returns the event with the given id.
func (s *EventStore) Get(id string) (types.BehavioralEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return types.BehavioralEvent{}, &types.NotFoundError{Kind: "event", ID: id}
	}
	return copyEvent(s.events[idx]), nil
}

// List returns events matching the filter, ordered by timestamp ascending
// with ties broken by insertion order. The result is a copy; mutating it
// does not affect the store.
func (s *EventStore) List(f types.Filter) []types.BehavioralEvent {
	s.mu.RLock()
	out := make([]types.BehavioralEvent, 0, len(s.events))
	for _, e := range s.events {
		if f.Matches(e) {
			out = append(out, copyEvent(e))
		}
	}
	s.mu.RUnlock()

	// Stable sort keeps insertion order for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Snapshot returns a copy of every event in insertion order. Detection and
// scan passes work over this copy: appends racing a long scan do not appear
// in its result.
func (s *EventStore) Snapshot() []types.BehavioralEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.BehavioralEvent, len(s.events))
	for i, e := range s.events {
		out[i] = copyEvent(e)
	}
	return out
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// ImportError reports a single failed item from a bulk import.
type ImportError struct {
	Index int
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// BulkImport appends each valid spec and reports per-item errors. A
// malformed item never aborts the batch. Returns imported ids and errors.
func (s *EventStore) BulkImport(specs []types.EventSpec) ([]string, []error) {
	timer := logging.StartTimer(logging.CategoryStore, "BulkImport")
	defer timer.Stop()

	var ids []string
	var errs []error
	for i, spec := range specs {
		id, err := s.Append(spec)
		if err != nil {
			errs = append(errs, &ImportError{Index: i, Err: err})
			continue
		}
		ids = append(ids, id)
	}

	logging.Store("Bulk import: %d imported, %d failed", len(ids), len(errs))
	return ids, errs
}

// SetPatternIDs attaches derived pattern names to an event. This is the only
// mutation the store permits, and only on the derived field.
func (s *EventStore) SetPatternIDs(eventID string, patternIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[eventID]
	if !ok {
		return &types.NotFoundError{Kind: "event", ID: eventID}
	}
	s.events[idx].PatternIDs = append([]string(nil), patternIDs...)
	return nil
}

// ClearPatternIDs resets the derived pattern references on every event,
// called at the start of a detection pass.
func (s *EventStore) ClearPatternIDs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		s.events[i].PatternIDs = nil
	}
}

func copyEvent(e types.BehavioralEvent) types.BehavioralEvent {
	c := e
	c.Tags = append([]string(nil), e.Tags...)
	c.PatternIDs = append([]string(nil), e.PatternIDs...)
	return c
}

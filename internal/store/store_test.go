package store

import (
	"testing"
	"time"

	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

func TestAppendAndGet(t *testing.T) {
	s := NewEventStore(nil)

	id, err := s.Append(types.EventSpec{
		EventType:   types.EventDecision,
		Description: "chose go over rust for the service",
		Tags:        []string{"engineering"},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if id == "" {
		t.Fatal("Append returned empty id")
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Description != "chose go over rust for the service" {
		t.Errorf("unexpected description: %q", got.Description)
	}
	if got.Timestamp.IsZero() {
		t.Error("zero timestamp should default to ingestion time")
	}
}

func TestAppendRejectsInvalidSpec(t *testing.T) {
	s := NewEventStore(nil)

	if _, err := s.Append(types.EventSpec{EventType: types.EventDecision}); !types.IsValidation(err) {
		t.Errorf("expected validation error for empty description, got %v", err)
	}
	if _, err := s.Append(types.EventSpec{EventType: "mood", Description: "x"}); !types.IsValidation(err) {
		t.Errorf("expected validation error for unknown type, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("invalid appends must not be stored, len = %d", s.Len())
	}
}

func TestGetUnknownID(t *testing.T) {
	s := NewEventStore(nil)
	if _, err := s.Get("does-not-exist"); !types.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestListOrderingWithTimestampTies(t *testing.T) {
	s := NewEventStore(nil)
	ts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first, _ := s.Append(types.EventSpec{EventType: types.EventDecision, Description: "first", Timestamp: ts})
	second, _ := s.Append(types.EventSpec{EventType: types.EventDecision, Description: "second", Timestamp: ts})
	earlier, _ := s.Append(types.EventSpec{EventType: types.EventDecision, Description: "earlier", Timestamp: ts.Add(-time.Hour)})

	got := s.List(types.Filter{})
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].ID != earlier {
		t.Errorf("earliest timestamp should come first, got %s", got[0].Description)
	}
	// Equal timestamps keep insertion order.
	if got[1].ID != first || got[2].ID != second {
		t.Errorf("timestamp ties must preserve insertion order: got %s, %s", got[1].Description, got[2].Description)
	}
}

func TestListFiltering(t *testing.T) {
	s := NewEventStore(nil)
	s.Append(types.EventSpec{EventType: types.EventDecision, Description: "a decision", Tags: []string{"ai"}})
	s.Append(types.EventSpec{EventType: types.EventProject, Description: "a project", Tags: []string{"ai"}})
	s.Append(types.EventSpec{EventType: types.EventProject, Description: "another project", Tags: []string{"infra"}})

	if got := s.List(types.Filter{EventType: types.EventProject}); len(got) != 2 {
		t.Errorf("type filter: expected 2, got %d", len(got))
	}
	if got := s.List(types.Filter{Tag: "ai"}); len(got) != 2 {
		t.Errorf("tag filter: expected 2, got %d", len(got))
	}
	if got := s.List(types.Filter{EventType: types.EventProject, Tag: "ai"}); len(got) != 1 {
		t.Errorf("combined filter: expected 1, got %d", len(got))
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewEventStore(nil)
	id, _ := s.Append(types.EventSpec{
		EventType:   types.EventDecision,
		Description: "original",
		Tags:        []string{"keep"},
	})

	snap := s.Snapshot()
	snap[0].Description = "mutated"
	snap[0].Tags[0] = "changed"

	got, _ := s.Get(id)
	if got.Description != "original" || got.Tags[0] != "keep" {
		t.Error("mutating a snapshot must not affect the store")
	}
}

func TestBulkImportPartialFailure(t *testing.T) {
	s := NewEventStore(nil)

	specs := []types.EventSpec{
		{EventType: types.EventDecision, Description: "valid one"},
		{EventType: types.EventDecision}, // missing description
		{EventType: types.EventProject, Description: "valid two"},
		{EventType: "nope", Description: "bad type"},
	}

	ids, errs := s.BulkImport(specs)
	if len(ids) != 2 {
		t.Errorf("expected 2 imported, got %d", len(ids))
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}

	// Errors carry the original item index.
	var ie *ImportError
	for _, err := range errs {
		var ok bool
		if ie, ok = err.(*ImportError); !ok {
			t.Fatalf("expected *ImportError, got %T", err)
		}
		if ie.Index != 1 && ie.Index != 3 {
			t.Errorf("unexpected failing index %d", ie.Index)
		}
		if !types.IsValidation(err) {
			t.Errorf("import errors should unwrap to validation errors, got %v", err)
		}
	}

	if s.Len() != 2 {
		t.Errorf("store should hold only valid events, len = %d", s.Len())
	}
}

func TestPatternIDBackReferences(t *testing.T) {
	s := NewEventStore(nil)
	id, _ := s.Append(types.EventSpec{EventType: types.EventDecision, Description: "evt"})

	if err := s.SetPatternIDs(id, []string{"decision-logic:speed"}); err != nil {
		t.Fatalf("SetPatternIDs failed: %v", err)
	}
	got, _ := s.Get(id)
	if len(got.PatternIDs) != 1 || got.PatternIDs[0] != "decision-logic:speed" {
		t.Errorf("pattern back-reference not attached: %v", got.PatternIDs)
	}

	s.ClearPatternIDs()
	got, _ = s.Get(id)
	if len(got.PatternIDs) != 0 {
		t.Errorf("ClearPatternIDs should reset derived references, got %v", got.PatternIDs)
	}

	if err := s.SetPatternIDs("unknown", nil); !types.IsNotFound(err) {
		t.Errorf("expected not-found for unknown event, got %v", err)
	}
}

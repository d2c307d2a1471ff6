// Package types defines the shared data model for the cognitive engine:
// behavioral events, derived patterns and anomalies, the seed profile, and
// the error taxonomy used across all analysis components.
package types

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// EVENT MODEL
// =============================================================================

// EventType classifies a behavioral event.
type EventType string

const (
	EventDecision      EventType = "decision"
	EventProject       EventType = "project"
	EventInteraction   EventType = "interaction"
	EventCommunication EventType = "communication"
)

// EventTypes lists every recognized event type, in declaration order.
func EventTypes() []EventType {
	return []EventType{EventDecision, EventProject, EventInteraction, EventCommunication}
}

// Valid reports whether t is a recognized event type.
func (t EventType) Valid() bool {
	switch t {
	case EventDecision, EventProject, EventInteraction, EventCommunication:
		return true
	}
	return false
}

// BehavioralEvent is a single logged occurrence attributed to the subject.
// Once appended to the store, an event is immutable except for PatternIDs,
// a derived field the engine may attach after a detection pass.
type BehavioralEvent struct {
	ID            string    `json:"id"`
	EventType     EventType `json:"event_type"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
	DecisionLogic string    `json:"decision_logic,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	Tags          []string  `json:"tags,omitempty"`

	// PatternIDs names the patterns this event supports. Derived; attached
	// by the engine, never supplied by callers.
	PatternIDs []string `json:"pattern_ids,omitempty"`
}

// HasTag reports whether the event carries the given tag.
func (e BehavioralEvent) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SearchText is the canonical text used when embedding or lexically matching
// an event.
func (e BehavioralEvent) SearchText() string {
	return string(e.EventType) + " " + e.Description
}

// EventSpec is the caller-supplied shape of a new event. The store assigns
// the id and defaults the timestamp to ingestion time when zero.
type EventSpec struct {
	EventType     EventType `json:"event_type"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	DecisionLogic string    `json:"decision_logic,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
}

// Validate checks the spec against the event invariants.
func (s EventSpec) Validate() error {
	if s.Description == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if !s.EventType.Valid() {
		return &ValidationError{Field: "event_type", Reason: fmt.Sprintf("unknown event type %q", s.EventType)}
	}
	return nil
}

// Filter narrows an event listing. Zero values mean "no constraint".
type Filter struct {
	EventType EventType
	Tag       string
	Since     time.Time
	Until     time.Time
}

// Matches reports whether the event passes the filter.
func (f Filter) Matches(e BehavioralEvent) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Tag != "" && !e.HasTag(f.Tag) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// =============================================================================
// COGNITIVE PROFILE
// =============================================================================

// CognitiveProfile holds the five fixed attribute groups, each mapping an
// attribute name to a score in [0,1]. Seeded once at startup and read-only
// to every analytics component.
type CognitiveProfile struct {
	Cognitive     map[string]float64 `json:"cognitive" yaml:"cognitive"`
	Behavioral    map[string]float64 `json:"behavioral" yaml:"behavioral"`
	Communication map[string]float64 `json:"communication" yaml:"communication"`
	Shadow        map[string]float64 `json:"shadow" yaml:"shadow"`
	Domains       map[string]float64 `json:"domains" yaml:"domains"`
}

// =============================================================================
// DERIVED RESULTS
// =============================================================================

// Pattern is a derived, evidence-backed recurring behavioral grouping.
// Patterns are recomputed wholesale on every detection pass; confidence is
// never carried over between runs.
type Pattern struct {
	Name                  string         `json:"name"`
	Confidence            float64        `json:"confidence"`
	SupportingEventIDs    []string       `json:"supporting_event_ids"`
	ContradictingEventIDs []string       `json:"contradicting_event_ids,omitempty"`
	Themes                map[string]int `json:"themes,omitempty"`
	Domains               map[string]int `json:"domains,omitempty"`
}

// AnomalyType classifies a detected anomaly.
type AnomalyType string

const (
	AnomalyLogicContradiction     AnomalyType = "logic_contradiction"
	AnomalyPerfectionismOverreach AnomalyType = "perfectionism_overreach"
	AnomalyPatternViolation       AnomalyType = "pattern_violation"
	AnomalyCognitiveOverload      AnomalyType = "cognitive_overload"
	AnomalyStatisticalOutlier     AnomalyType = "statistical_outlier"
)

// Anomaly is a point-in-time flag for a contradiction, bias signal, or
// statistical deviation. Timestamp is detection time, not event time.
type Anomaly struct {
	ID              string      `json:"id"`
	Type            AnomalyType `json:"anomaly_type"`
	Severity        float64     `json:"severity"`
	Explanation     string      `json:"explanation"`
	Recommendation  string      `json:"recommendation,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
	RelatedEventIDs []string    `json:"related_event_ids,omitempty"`
	PatternName     string      `json:"pattern_name,omitempty"`
}

// SourceKind tags an embedded or searchable item as an event or a pattern.
type SourceKind string

const (
	SourceEvent   SourceKind = "event"
	SourcePattern SourceKind = "pattern"
)

// SearchResult is a single ranked hit from semantic search.
type SearchResult struct {
	SourceKind SourceKind `json:"source_kind"`
	SourceID   string     `json:"source_id"`
	Content    string     `json:"content"`
	Similarity float64    `json:"similarity"`
}

// Prediction is the output of a scenario simulation.
type Prediction struct {
	Scenario                string   `json:"scenario"`
	PredictedDecision       string   `json:"predicted_decision"`
	Reasoning               string   `json:"reasoning"`
	Confidence              float64  `json:"confidence"`
	AlternativePaths        []string `json:"alternative_paths,omitempty"`
	CognitiveLoadAssessment string   `json:"cognitive_load_assessment"`
	BiasCheck               string   `json:"bias_check,omitempty"`
	RelatedEventIDs         []string `json:"related_event_ids,omitempty"`
	RelatedPatterns         []string `json:"related_patterns,omitempty"`
}

// Metadata describes the engine instance in exports and health reports.
type Metadata struct {
	Subject   string    `json:"subject"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a full export of the engine state.
type Snapshot struct {
	Metadata   Metadata          `json:"metadata"`
	Profile    CognitiveProfile  `json:"profile"`
	Events     []BehavioralEvent `json:"events"`
	Patterns   []Pattern         `json:"patterns"`
	Anomalies  []Anomaly         `json:"anomalies"`
	ExportedAt time.Time         `json:"exported_at"`
}

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// ValidationError marks malformed caller input. Surfaced, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NotFoundError marks a lookup by unknown id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ErrEmbeddingUnavailable signals that the embedding backend is down or timed
// out. Callers recover via the lexical fallback rather than failing the
// user-facing operation.
var ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

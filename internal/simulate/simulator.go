// Package simulate predicts the subject's likely decision for a hypothetical
// scenario by projecting it onto the recorded history: nearest events and
// patterns vote, weighted by similarity, and the profile tempers the
// assessment.
package simulate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Kubana90/operator-996-cognitive-os/internal/config"
	"github.com/Kubana90/operator-996-cognitive-os/internal/embedding"
	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

// Simulator answers "what would the subject decide here" from history.
type Simulator struct {
	cfg     config.SimulatorConfig
	index   *embedding.Index
	profile types.CognitiveProfile
}

// NewSimulator creates a simulator over the given index and seed profile.
func NewSimulator(cfg config.SimulatorConfig, index *embedding.Index, profile types.CognitiveProfile) *Simulator {
	return &Simulator{cfg: cfg, index: index, profile: profile}
}

// Simulate runs the prediction pipeline for a scenario over the given event,
// pattern, and anomaly snapshots. An empty scenario is a validation error.
// With no usable precedent the result is the degenerate prediction:
// confidence zero and an explicit insufficient-evidence statement, never an
// invented answer.
func (s *Simulator) Simulate(ctx context.Context, scenario string, events []types.BehavioralEvent, patterns []types.Pattern, anomalies []types.Anomaly) (*types.Prediction, error) {
	if strings.TrimSpace(scenario) == "" {
		return nil, &types.ValidationError{Field: "scenario", Reason: "must not be empty"}
	}

	timer := logging.StartTimer(logging.CategorySimulation, "Simulate")
	defer timer.Stop()

	byID := make(map[string]types.BehavioralEvent, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}
	patternByName := make(map[string]types.Pattern, len(patterns))
	for _, p := range patterns {
		patternByName[p.Name] = p
	}

	eventMatches := s.index.Nearest(ctx, scenario, s.cfg.TopK, types.SourceEvent)
	patternMatches := s.index.Nearest(ctx, scenario, s.cfg.TopK, types.SourcePattern)

	pred := &types.Prediction{Scenario: scenario}
	for _, m := range eventMatches {
		pred.RelatedEventIDs = append(pred.RelatedEventIDs, m.Key)
	}
	for _, m := range patternMatches {
		if _, ok := patternByName[m.Key]; ok {
			pred.RelatedPatterns = append(pred.RelatedPatterns, m.Key)
		}
	}

	// Similarity-weighted vote over the retrieved decision logics. Votes for
	// the same logic accumulate; recency breaks weight ties.
	type vote struct {
		logic  string
		weight float64
		latest time.Time
	}
	votes := make(map[string]*vote)
	var order []string
	var simSum float64
	matched := 0
	for _, m := range eventMatches {
		e, ok := byID[m.Key]
		if !ok {
			continue
		}
		simSum += m.Similarity
		matched++
		if e.DecisionLogic == "" {
			continue
		}
		v, seen := votes[e.DecisionLogic]
		if !seen {
			v = &vote{logic: e.DecisionLogic}
			votes[e.DecisionLogic] = v
			order = append(order, e.DecisionLogic)
		}
		v.weight += m.Similarity
		if e.Timestamp.After(v.latest) {
			v.latest = e.Timestamp
		}
	}

	if matched == 0 || len(votes) == 0 {
		pred.PredictedDecision = "Insufficient evidence to predict a decision"
		pred.Reasoning = "No recorded events resemble this scenario closely enough to project from"
		pred.Confidence = 0
		pred.CognitiveLoadAssessment = s.loadAssessment(len(eventMatches))
		pred.BiasCheck = s.biasCheck(scenario, anomalies, byID, patternMatches, patternByName)
		logging.Simulation("Simulate %q: insufficient evidence (%d matches)", scenario, matched)
		return pred, nil
	}

	ranked := make([]*vote, 0, len(votes))
	for _, logic := range order {
		ranked = append(ranked, votes[logic])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].latest.After(ranked[j].latest)
	})

	pred.PredictedDecision = ranked[0].logic
	for _, v := range ranked[1:] {
		pred.AlternativePaths = append(pred.AlternativePaths, v.logic)
	}

	// Confidence blends how close the precedents are with how many of the
	// requested neighbors actually resolved to history.
	avgSim := simSum / float64(matched)
	pred.Confidence = clamp01(avgSim * float64(matched) / float64(s.cfg.TopK))

	pred.Reasoning = s.reasoning(eventMatches, patternMatches, byID, patternByName)
	pred.CognitiveLoadAssessment = s.loadAssessment(matched)
	pred.BiasCheck = s.biasCheck(scenario, anomalies, byID, patternMatches, patternByName)

	logging.Simulation("Simulate %q: %d precedents, confidence %.2f", scenario, matched, pred.Confidence)
	return pred, nil
}

// reasoning summarizes the strongest precedents backing the prediction.
func (s *Simulator) reasoning(eventMatches, patternMatches []embedding.Match, byID map[string]types.BehavioralEvent, patternByName map[string]types.Pattern) string {
	var parts []string
	for i, m := range eventMatches {
		if i >= 2 {
			break
		}
		if e, ok := byID[m.Key]; ok {
			parts = append(parts, fmt.Sprintf("past event %q (similarity %.2f)", e.Description, m.Similarity))
		}
	}
	for _, m := range patternMatches {
		if p, ok := patternByName[m.Key]; ok {
			parts = append(parts, fmt.Sprintf("pattern %s (confidence %.2f)", p.Name, p.Confidence))
			break
		}
	}
	if len(parts) == 0 {
		return "Projection from weakly related history"
	}
	return "Based on " + strings.Join(parts, "; ")
}

// loadAssessment reads the shadow profile's overload risk together with how
// much precedent the scenario touches.
func (s *Simulator) loadAssessment(matched int) string {
	risk := s.profile.Shadow["cognitive_overload_risk"]
	switch {
	case risk >= 0.7:
		return fmt.Sprintf("High baseline overload risk (%.2f); a novel scenario like this adds pressure", risk)
	case matched == 0:
		return "Unfamiliar territory; expect higher than usual cognitive load"
	case risk >= 0.4:
		return fmt.Sprintf("Moderate overload risk (%.2f); familiar precedent keeps the load manageable", risk)
	default:
		return "Low expected cognitive load; the scenario maps onto established experience"
	}
}

// biasCheck cross-references the scanner's current anomalies against the
// scenario: an anomaly whose theme overlaps the scenario's vocabulary means
// the history the prediction projects from is itself suspect. When no anomaly
// touches the scenario, the dominant retrieved pattern is surfaced as a prior
// worth questioning instead. Anomalies arrive severity-sorted, so the first
// overlap is the most severe.
func (s *Simulator) biasCheck(scenario string, anomalies []types.Anomaly, byID map[string]types.BehavioralEvent, patternMatches []embedding.Match, patternByName map[string]types.Pattern) string {
	scenarioTokens := embedding.TokenSet(scenario)
	for _, a := range anomalies {
		if overlaps(scenarioTokens, anomalyTokens(a, byID)) {
			return fmt.Sprintf("Active %s anomaly touches this scenario: %s; weigh the prediction accordingly", a.Type, a.Explanation)
		}
	}
	for _, m := range patternMatches {
		p, ok := patternByName[m.Key]
		if !ok {
			continue
		}
		if p.Confidence >= 0.5 {
			return fmt.Sprintf("Prediction leans on pattern %s; confirm the habit still fits rather than defaulting to it", p.Name)
		}
	}
	return ""
}

// anomalyTokens collects the vocabulary an anomaly is about: its explanation,
// the pattern it violates, and the tags of the events it implicates.
func anomalyTokens(a types.Anomaly, byID map[string]types.BehavioralEvent) map[string]bool {
	set := embedding.TokenSet(a.Explanation)
	for tok := range embedding.TokenSet(strings.ReplaceAll(a.PatternName, ":", " ")) {
		set[tok] = true
	}
	for _, id := range a.RelatedEventIDs {
		e, ok := byID[id]
		if !ok {
			continue
		}
		for _, tag := range e.Tags {
			for tok := range embedding.TokenSet(tag) {
				set[tok] = true
			}
		}
	}
	return set
}

func overlaps(a, b map[string]bool) bool {
	for tok := range a {
		if b[tok] {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

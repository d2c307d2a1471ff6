package anomaly

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Kubana90/operator-996-cognitive-os/internal/config"
	"github.com/Kubana90/operator-996-cognitive-os/internal/embedding"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

// =============================================================================
// LOGIC CONTRADICTION
// =============================================================================

// contradictionRule flags pairs of decision events that share context (at
// least one common tag) but reason in dissimilar directions. Low similarity
// between the two decision logics, below the configured ceiling, is the
// contradiction signal.
type contradictionRule struct {
	cfg   config.ScannerConfig
	index *embedding.Index
}

func (r *contradictionRule) Name() string { return "logic-contradiction" }

func (r *contradictionRule) Scan(ctx context.Context, in *Input) []types.Anomaly {
	var decisions []types.BehavioralEvent
	for _, e := range in.Events {
		if e.EventType == types.EventDecision && e.DecisionLogic != "" {
			decisions = append(decisions, e)
		}
	}

	shareTag := func(a, b types.BehavioralEvent) string {
		for _, tag := range a.Tags {
			if b.HasTag(tag) {
				return tag
			}
		}
		return ""
	}

	var out []types.Anomaly
	for i := 0; i < len(decisions); i++ {
		for j := i + 1; j < len(decisions); j++ {
			a, b := decisions[i], decisions[j]
			tag := shareTag(a, b)
			if tag == "" {
				continue
			}

			sim := r.index.Similarity(ctx, a.DecisionLogic, b.DecisionLogic)
			if sim >= r.cfg.ContradictionSimilarityCeiling {
				continue
			}

			out = append(out, types.Anomaly{
				Type:     types.AnomalyLogicContradiction,
				Severity: (r.cfg.ContradictionSimilarityCeiling - sim) / r.cfg.ContradictionSimilarityCeiling,
				Explanation: fmt.Sprintf(
					"Decisions in the same context (%s) follow divergent reasoning: %q vs %q (similarity %.2f)",
					tag, a.DecisionLogic, b.DecisionLogic, sim),
				Recommendation:  "Review both decisions and reconcile which reasoning applies in this context",
				RelatedEventIDs: []string{a.ID, b.ID},
			})
		}
	}
	return out
}

// =============================================================================
// PERFECTIONISM OVERREACH
// =============================================================================

// perfectionismRule flags a low project completion rate: many started
// projects, few carried to completion. Outcome text containing "complete"
// counts as finished; anything else counts as open or abandoned.
type perfectionismRule struct {
	cfg config.ScannerConfig
}

func (r *perfectionismRule) Name() string { return "perfectionism-overreach" }

func (r *perfectionismRule) Scan(_ context.Context, in *Input) []types.Anomaly {
	var completed int
	var open []string
	total := 0
	for _, e := range in.Events {
		if e.EventType != types.EventProject {
			continue
		}
		total++
		if strings.Contains(strings.ToLower(e.Outcome), "complete") {
			completed++
		} else {
			open = append(open, e.ID)
		}
	}

	// Too small a sample reads as noise, not a habit.
	if total < r.cfg.MinProjectSample {
		return nil
	}

	rate := float64(completed) / float64(total)
	if rate >= r.cfg.CompletionRateFloor {
		return nil
	}

	return []types.Anomaly{{
		Type:     types.AnomalyPerfectionismOverreach,
		Severity: (r.cfg.CompletionRateFloor - rate) / r.cfg.CompletionRateFloor,
		Explanation: fmt.Sprintf(
			"Only %d of %d projects reached completion (%.0f%%); scope may be outrunning follow-through",
			completed, total, rate*100),
		Recommendation:  "Close or explicitly park open projects before starting new ones",
		RelatedEventIDs: open,
	}}
}

// =============================================================================
// PATTERN VIOLATION
// =============================================================================

// patternViolationRule flags events tagged into a pattern's territory that
// sit outside its similarity envelope: the event claims the context but does
// not behave like the pattern's supporting evidence.
type patternViolationRule struct {
	cfg   config.ScannerConfig
	index *embedding.Index
}

func (r *patternViolationRule) Name() string { return "pattern-violation" }

func (r *patternViolationRule) Scan(_ context.Context, in *Input) []types.Anomaly {
	var out []types.Anomaly
	for _, p := range in.Patterns {
		if len(p.SupportingEventIDs) == 0 {
			continue
		}
		supporting := make(map[string]bool, len(p.SupportingEventIDs))
		for _, id := range p.SupportingEventIDs {
			supporting[id] = true
		}

		inTerritory := func(e types.BehavioralEvent) bool {
			for _, tag := range e.Tags {
				if p.Themes[tag] > 0 || p.Domains[tag] > 0 {
					return true
				}
			}
			return false
		}

		for _, e := range in.Events {
			if supporting[e.ID] || !inTerritory(e) {
				continue
			}

			var simSum float64
			n := 0
			for _, sid := range p.SupportingEventIDs {
				if sim, ok := r.index.KeySimilarity(e.ID, sid); ok {
					simSum += sim
					n++
				}
			}
			if n == 0 {
				continue
			}
			avg := simSum / float64(n)
			if avg >= r.cfg.PatternEnvelopeFloor {
				continue
			}

			out = append(out, types.Anomaly{
				Type:     types.AnomalyPatternViolation,
				Severity: (r.cfg.PatternEnvelopeFloor - avg) / r.cfg.PatternEnvelopeFloor,
				Explanation: fmt.Sprintf(
					"Event %q shares context with pattern %s but diverges from its evidence (similarity %.2f)",
					e.Description, p.Name, avg),
				Recommendation:  "Check whether the pattern has shifted or this event is a one-off departure",
				RelatedEventIDs: []string{e.ID},
				PatternName:     p.Name,
			})
		}
	}
	return out
}

// =============================================================================
// COGNITIVE OVERLOAD
// =============================================================================

// overloadRule flags a burst of high-intensity activity: more events of the
// configured types inside the sliding window than the configured rate. Slow
// background types (projects, learning) are excluded so steady bookkeeping
// does not read as overload. Only the densest window is reported.
type overloadRule struct {
	cfg config.ScannerConfig
}

func (r *overloadRule) Name() string { return "cognitive-overload" }

func (r *overloadRule) Scan(_ context.Context, in *Input) []types.Anomaly {
	intense := make(map[string]bool, len(r.cfg.OverloadTypes))
	for _, t := range r.cfg.OverloadTypes {
		intense[t] = true
	}

	var ordered []types.BehavioralEvent
	for _, e := range in.Events {
		if len(intense) == 0 || intense[string(e.EventType)] {
			ordered = append(ordered, e)
		}
	}
	if len(ordered) == 0 {
		return nil
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	window := r.cfg.OverloadWindowDuration()
	bestCount := 0
	var bestIDs []string
	start := 0
	for end := range ordered {
		for ordered[end].Timestamp.Sub(ordered[start].Timestamp) > window {
			start++
		}
		if count := end - start + 1; count > bestCount {
			bestCount = count
			bestIDs = nil
			for _, e := range ordered[start : end+1] {
				bestIDs = append(bestIDs, e.ID)
			}
		}
	}

	if bestCount <= r.cfg.OverloadRate {
		return nil
	}

	return []types.Anomaly{{
		Type:     types.AnomalyCognitiveOverload,
		Severity: float64(bestCount-r.cfg.OverloadRate) / float64(r.cfg.OverloadRate),
		Explanation: fmt.Sprintf(
			"%d high-intensity events logged inside a %s window, above the sustainable rate of %d",
			bestCount, window, r.cfg.OverloadRate),
		Recommendation:  "Reduce parallel context switches; batch or defer lower-priority activity",
		RelatedEventIDs: bestIDs,
	}}
}

// =============================================================================
// STATISTICAL OUTLIER
// =============================================================================

// outlierRule isolates events whose shape (type, length, tag count, timing)
// deviates from the rest of the history, using an isolation forest. Below
// the minimum sample the rule is silent: too little history to call anything
// an outlier.
type outlierRule struct {
	cfg config.ScannerConfig
}

func (r *outlierRule) Name() string { return "statistical-outlier" }

func (r *outlierRule) Scan(_ context.Context, in *Input) []types.Anomaly {
	if len(in.Events) < r.cfg.MinStatisticalSample {
		return nil
	}

	ordered := append([]types.BehavioralEvent(nil), in.Events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	features := make([][]float64, len(ordered))
	for i, e := range ordered {
		// The first event has no predecessor; its forward gap stands in so a
		// perfectly regular cadence yields a constant timing feature.
		gap := 0.0
		if i > 0 {
			gap = e.Timestamp.Sub(ordered[i-1].Timestamp).Hours()
		} else if len(ordered) > 1 {
			gap = ordered[1].Timestamp.Sub(e.Timestamp).Hours()
		}
		features[i] = eventFeatures(e, gap)
	}

	forest := newIsolationForest(r.cfg.OutlierTrees, r.cfg.OutlierSampleSize, newRNG(len(ordered)))
	forest.train(features)

	var out []types.Anomaly
	for i, e := range ordered {
		score := forest.score(features[i])
		if score < r.cfg.OutlierCutoff {
			continue
		}
		out = append(out, types.Anomaly{
			Type:     types.AnomalyStatisticalOutlier,
			Severity: score,
			Explanation: fmt.Sprintf(
				"Event %q deviates from the usual activity shape (isolation score %.2f)",
				e.Description, score),
			Recommendation:  "Verify the event was logged as intended; unusual entries skew later analysis",
			RelatedEventIDs: []string{e.ID},
		})
	}
	return out
}

// eventFeatures projects an event onto the numeric axes the outlier detector
// splits on.
func eventFeatures(e types.BehavioralEvent, hoursSincePrev float64) []float64 {
	typeIdx := 0.0
	for i, t := range types.EventTypes() {
		if e.EventType == t {
			typeIdx = float64(i)
			break
		}
	}
	hasLogic := 0.0
	if e.DecisionLogic != "" {
		hasLogic = 1
	}
	return []float64{
		typeIdx,
		float64(len(e.Description)),
		float64(len(e.Tags)),
		hasLogic,
		float64(e.Timestamp.Hour()),
		hoursSincePrev,
	}
}

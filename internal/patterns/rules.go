package patterns

import (
	"context"
	"sort"

	"github.com/Kubana90/operator-996-cognitive-os/internal/config"
	"github.com/Kubana90/operator-996-cognitive-os/internal/embedding"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

// =============================================================================
// DECISION-LOGIC CLUSTERING
// =============================================================================

// decisionLogicRule groups decision events whose decision_logic texts overlap
// lexically. Grouping is greedy in insertion order: each ungrouped event
// seeds a cluster and absorbs every later event whose logic clears the
// Jaccard cutoff against the seed.
type decisionLogicRule struct {
	cfg config.DetectorConfig
}

func (r *decisionLogicRule) Name() string { return "decision-logic" }

func (r *decisionLogicRule) Evaluate(_ context.Context, snap *Snapshot) []types.Pattern {
	type candidate struct {
		event  types.BehavioralEvent
		tokens map[string]bool
	}

	var cands []candidate
	for _, e := range snap.Events {
		if e.EventType != types.EventDecision || e.DecisionLogic == "" {
			continue
		}
		cands = append(cands, candidate{event: e, tokens: embedding.TokenSet(e.DecisionLogic)})
	}

	grouped := make([]bool, len(cands))
	var out []types.Pattern

	for i := range cands {
		if grouped[i] {
			continue
		}
		group := []int{i}
		grouped[i] = true
		for j := i + 1; j < len(cands); j++ {
			if grouped[j] {
				continue
			}
			if embedding.Jaccard(cands[i].tokens, cands[j].tokens) >= r.cfg.DecisionJaccardCutoff {
				group = append(group, j)
				grouped[j] = true
			}
		}
		if len(group) < r.cfg.MinSupport {
			continue
		}

		// Confidence is the mean pairwise overlap inside the group: tighter
		// clusters score higher.
		var simSum float64
		pairs := 0
		for a := 0; a < len(group); a++ {
			for b := a + 1; b < len(group); b++ {
				simSum += embedding.Jaccard(cands[group[a]].tokens, cands[group[b]].tokens)
				pairs++
			}
		}
		confidence := 0.0
		if pairs > 0 {
			confidence = simSum / float64(pairs)
		}

		themes := make(map[string]int)
		ids := make([]string, 0, len(group))
		for _, gi := range group {
			ids = append(ids, cands[gi].event.ID)
			for tok := range cands[gi].tokens {
				themes[tok]++
			}
		}
		// Keep only tokens at least two members share.
		for tok, n := range themes {
			if n < 2 {
				delete(themes, tok)
			}
		}

		out = append(out, types.Pattern{
			Name:               "decision-logic:" + topTheme(themes, "general"),
			Confidence:         confidence,
			SupportingEventIDs: ids,
			Themes:             themes,
		})
	}
	return out
}

// =============================================================================
// DOMAIN CLUSTERING
// =============================================================================

// domainClusterRule groups project events by shared tag. Confidence is the
// share of all project activity the domain accounts for.
type domainClusterRule struct {
	cfg config.DetectorConfig
}

func (r *domainClusterRule) Name() string { return "domain-cluster" }

func (r *domainClusterRule) Evaluate(_ context.Context, snap *Snapshot) []types.Pattern {
	var projects []types.BehavioralEvent
	for _, e := range snap.Events {
		if e.EventType == types.EventProject {
			projects = append(projects, e)
		}
	}
	if len(projects) == 0 {
		return nil
	}

	byTag := make(map[string][]types.BehavioralEvent)
	for _, e := range projects {
		seen := make(map[string]bool, len(e.Tags))
		for _, tag := range e.Tags {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			byTag[tag] = append(byTag[tag], e)
		}
	}

	var out []types.Pattern
	for _, tag := range sortedKeys(byTag) {
		members := byTag[tag]
		if len(members) < r.cfg.MinSupport {
			continue
		}

		domains := make(map[string]int)
		ids := make([]string, 0, len(members))
		for _, e := range members {
			ids = append(ids, e.ID)
			for _, t := range e.Tags {
				domains[t]++
			}
		}

		out = append(out, types.Pattern{
			Name:               "domain:" + tag,
			Confidence:         float64(len(members)) / float64(len(projects)),
			SupportingEventIDs: ids,
			Domains:            domains,
		})
	}
	return out
}

// =============================================================================
// COMMUNICATION STYLE
// =============================================================================

// communicationRule groups communication events by shared tag, weighting
// frequency by recency: a style still present in recent activity scores
// higher than one that faded.
type communicationRule struct {
	cfg config.DetectorConfig
}

func (r *communicationRule) Name() string { return "communication-style" }

func (r *communicationRule) Evaluate(_ context.Context, snap *Snapshot) []types.Pattern {
	var comms []types.BehavioralEvent
	for _, e := range snap.Events {
		if e.EventType == types.EventCommunication {
			comms = append(comms, e)
		}
	}
	if len(comms) == 0 {
		return nil
	}

	// Rank by timestamp ascending; normalized rank is the recency weight.
	ordered := append([]types.BehavioralEvent(nil), comms...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	rank := make(map[string]float64, len(ordered))
	for i, e := range ordered {
		if len(ordered) == 1 {
			rank[e.ID] = 1
		} else {
			rank[e.ID] = float64(i) / float64(len(ordered)-1)
		}
	}

	byTag := make(map[string][]types.BehavioralEvent)
	for _, e := range comms {
		seen := make(map[string]bool, len(e.Tags))
		for _, tag := range e.Tags {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			byTag[tag] = append(byTag[tag], e)
		}
	}

	var out []types.Pattern
	for _, tag := range sortedKeys(byTag) {
		members := byTag[tag]
		if len(members) < r.cfg.MinSupport {
			continue
		}

		share := float64(len(members)) / float64(len(comms))
		var recency float64
		themes := make(map[string]int)
		ids := make([]string, 0, len(members))
		for _, e := range members {
			ids = append(ids, e.ID)
			recency += rank[e.ID]
			for _, t := range e.Tags {
				themes[t]++
			}
		}
		recency /= float64(len(members))

		out = append(out, types.Pattern{
			Name:               "communication:" + tag,
			Confidence:         share * (0.5 + 0.5*recency),
			SupportingEventIDs: ids,
			Themes:             themes,
		})
	}
	return out
}

// =============================================================================
// EMERGING PATTERNS
// =============================================================================

// emergingRule clusters the most recent uncovered events by embedding
// similarity. Emerging groups carry a capped baseline confidence: recency
// alone is weaker evidence than an established recurring structure.
type emergingRule struct {
	cfg   config.DetectorConfig
	index *embedding.Index
}

func (r *emergingRule) Name() string { return "emerging" }

func (r *emergingRule) Evaluate(_ context.Context, snap *Snapshot) []types.Pattern {
	window := snap.Events
	if len(window) > r.cfg.EmergingWindow {
		window = window[len(window)-r.cfg.EmergingWindow:]
	}

	var cands []types.BehavioralEvent
	for _, e := range window {
		if !snap.Covered[e.ID] {
			cands = append(cands, e)
		}
	}

	sim := func(a, b types.BehavioralEvent) float64 {
		if r.index != nil {
			if s, ok := r.index.KeySimilarity(a.ID, b.ID); ok {
				return s
			}
		}
		return embedding.LexicalSimilarity(a.SearchText(), b.SearchText())
	}

	grouped := make([]bool, len(cands))
	var out []types.Pattern

	for i := range cands {
		if grouped[i] {
			continue
		}
		group := []int{i}
		grouped[i] = true
		for j := i + 1; j < len(cands); j++ {
			if grouped[j] {
				continue
			}
			if sim(cands[i], cands[j]) >= r.cfg.EmergingSimilarityFloor {
				group = append(group, j)
				grouped[j] = true
			}
		}
		if len(group) < r.cfg.MinSupport {
			continue
		}

		var simSum float64
		pairs := 0
		for a := 0; a < len(group); a++ {
			for b := a + 1; b < len(group); b++ {
				simSum += sim(cands[group[a]], cands[group[b]])
				pairs++
			}
		}
		avg := 0.0
		if pairs > 0 {
			avg = simSum / float64(pairs)
		}

		themes := make(map[string]int)
		ids := make([]string, 0, len(group))
		for _, gi := range group {
			ids = append(ids, cands[gi].ID)
			for tok := range embedding.TokenSet(cands[gi].Description) {
				themes[tok]++
			}
		}
		for tok, n := range themes {
			if n < 2 {
				delete(themes, tok)
			}
		}

		out = append(out, types.Pattern{
			Name:               "emerging:" + topTheme(themes, "recent"),
			Confidence:         r.cfg.EmergingBaselineConfidence * avg,
			SupportingEventIDs: ids,
			Themes:             themes,
		})
	}
	return out
}

// =============================================================================
// HELPERS
// =============================================================================

// topTheme picks the most frequent theme token, breaking count ties by
// lexicographic order so a fixed snapshot always yields the same name.
func topTheme(themes map[string]int, fallback string) string {
	best := ""
	bestCount := 0
	for _, tok := range sortedKeys(themes) {
		if themes[tok] > bestCount {
			best, bestCount = tok, themes[tok]
		}
	}
	if best == "" {
		return fallback
	}
	return best
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

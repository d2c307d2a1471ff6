// Package patterns scans event snapshots for recurring behavioral structure.
// Detection is a registry of independent rules: each rule is a pure function
// of the snapshot, emits zero or more scored Pattern records, and never
// depends on a prior run. New rules are added by registering an
// implementation, not by editing a central function.
package patterns

import (
	"context"
	"sort"

	"github.com/Kubana90/operator-996-cognitive-os/internal/config"
	"github.com/Kubana90/operator-996-cognitive-os/internal/embedding"
	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

// Snapshot is the immutable input to a detection pass. Events are in
// insertion order. Covered holds ids already claimed by an emitted pattern;
// it is empty for first-phase rules and populated for the emerging-pattern
// rule, which only looks at events no established group explains.
type Snapshot struct {
	Events  []types.BehavioralEvent
	Covered map[string]bool
}

// Rule evaluates a snapshot and emits patterns. Implementations must be
// deterministic for a fixed snapshot and must not emit a pattern with fewer
// supporting events than the configured minimum.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, snap *Snapshot) []types.Pattern
}

// Detector runs registered rules over event snapshots.
type Detector struct {
	cfg      config.DetectorConfig
	rules    []Rule
	emerging Rule
}

// NewDetector creates a detector with the built-in rule families registered.
// The emerging-pattern rule runs in a second phase so it can exclude events
// already covered by established groups.
func NewDetector(cfg config.DetectorConfig, index *embedding.Index) *Detector {
	d := &Detector{
		cfg:      cfg,
		emerging: &emergingRule{cfg: cfg, index: index},
	}
	d.Register(&decisionLogicRule{cfg: cfg})
	d.Register(&domainClusterRule{cfg: cfg})
	d.Register(&communicationRule{cfg: cfg})
	return d
}

// Register adds a first-phase rule.
func (d *Detector) Register(r Rule) {
	d.rules = append(d.rules, r)
}

// Detect runs every rule over the snapshot and returns the merged pattern
// set, confidence-sorted descending. Re-running over an identical snapshot
// yields identical output.
func (d *Detector) Detect(ctx context.Context, events []types.BehavioralEvent) []types.Pattern {
	timer := logging.StartTimer(logging.CategoryPatterns, "Detect")
	defer timer.Stop()

	snap := &Snapshot{Events: events, Covered: make(map[string]bool)}

	merged := make(map[string]types.Pattern)
	var order []string

	collect := func(found []types.Pattern) {
		for _, p := range found {
			p.Confidence = clamp01(p.Confidence)
			existing, ok := merged[p.Name]
			if !ok {
				merged[p.Name] = p
				order = append(order, p.Name)
				continue
			}
			// Same name from two rules: the higher-confidence pattern wins
			// and absorbs the other's supporting events as extra evidence.
			winner, loser := existing, p
			if p.Confidence > existing.Confidence {
				winner, loser = p, existing
			}
			winner.SupportingEventIDs = unionOrdered(winner.SupportingEventIDs, loser.SupportingEventIDs)
			winner.ContradictingEventIDs = unionOrdered(winner.ContradictingEventIDs, loser.ContradictingEventIDs)
			winner.Themes = mergeCounts(winner.Themes, loser.Themes)
			winner.Domains = mergeCounts(winner.Domains, loser.Domains)
			merged[p.Name] = winner
		}
	}

	for _, rule := range d.rules {
		found := rule.Evaluate(ctx, snap)
		logging.PatternsDebug("Rule %s emitted %d patterns", rule.Name(), len(found))
		collect(found)
	}

	// Established groups claim their events before the emerging rule runs.
	for _, name := range order {
		for _, id := range merged[name].SupportingEventIDs {
			snap.Covered[id] = true
		}
	}
	collect(d.emerging.Evaluate(ctx, snap))

	out := make([]types.Pattern, 0, len(merged))
	for _, name := range order {
		out = append(out, merged[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})

	logging.Patterns("Detected %d patterns from %d events", len(out), len(events))
	return out
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

func unionOrdered(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func mergeCounts(a, b map[string]int) map[string]int {
	if a == nil && b == nil {
		return nil
	}
	out := make(map[string]int, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

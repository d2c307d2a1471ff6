// Package anomaly flags contradictions, bias signals, and statistical
// deviations in the event history. Like pattern detection, scanning is a
// registry of independent rules over an immutable snapshot; every finding is
// point-in-time and stamped with detection time, not event time.
package anomaly

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Kubana90/operator-996-cognitive-os/internal/config"
	"github.com/Kubana90/operator-996-cognitive-os/internal/embedding"
	"github.com/Kubana90/operator-996-cognitive-os/internal/logging"
	"github.com/Kubana90/operator-996-cognitive-os/internal/types"
)

// Input is the immutable snapshot a scan runs over. Patterns are the latest
// detection results; Now stamps every finding.
type Input struct {
	Events   []types.BehavioralEvent
	Patterns []types.Pattern
	Now      time.Time
}

// Rule inspects a snapshot and emits findings. Implementations must be
// deterministic for a fixed snapshot.
type Rule interface {
	Name() string
	Scan(ctx context.Context, in *Input) []types.Anomaly
}

// Scanner runs registered anomaly rules over event snapshots.
type Scanner struct {
	cfg   config.ScannerConfig
	rules []Rule
}

// NewScanner creates a scanner with the built-in rule families registered.
func NewScanner(cfg config.ScannerConfig, index *embedding.Index) *Scanner {
	s := &Scanner{cfg: cfg}
	s.Register(&contradictionRule{cfg: cfg, index: index})
	s.Register(&perfectionismRule{cfg: cfg})
	s.Register(&patternViolationRule{cfg: cfg, index: index})
	s.Register(&overloadRule{cfg: cfg})
	s.Register(&outlierRule{cfg: cfg})
	return s
}

// Register adds a rule to the scanner.
func (s *Scanner) Register(r Rule) {
	s.rules = append(s.rules, r)
}

// Scan runs every rule and returns the findings sorted by severity
// descending. Each finding gets a fresh id and the snapshot timestamp;
// severities are clamped to [0,1].
func (s *Scanner) Scan(ctx context.Context, in *Input) []types.Anomaly {
	timer := logging.StartTimer(logging.CategoryAnomalies, "Scan")
	defer timer.Stop()

	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	var out []types.Anomaly
	for _, rule := range s.rules {
		found := rule.Scan(ctx, in)
		logging.AnomaliesDebug("Rule %s emitted %d findings", rule.Name(), len(found))
		for _, a := range found {
			a.ID = uuid.NewString()
			a.Severity = clamp01(a.Severity)
			a.Timestamp = in.Now
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Type < out[j].Type
	})

	logging.Anomalies("Scan over %d events produced %d findings", len(in.Events), len(out))
	return out
}

// newRNG seeds the statistical detector from the snapshot size so a fixed
// snapshot scores identically across runs.
func newRNG(n int) *rand.Rand {
	return rand.New(rand.NewSource(int64(n)*2654435761 + 1))
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

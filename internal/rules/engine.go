// Package rules implements the deterministic pre-classification that runs
// before, and often instead of, the reasoning service.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nhle/inbox-clarity/internal/model"
)

// Rule is one predicate/verdict pair. Rules are evaluated in ascending
// Priority order and the first one whose Match returns true decides the
// verdict.
type Rule struct {
	Name     string
	Priority int
	Match    func(req model.ClassificationRequest) bool
	Verdict  func(req model.ClassificationRequest) model.RuleVerdict
}

// Engine evaluates an ordered rule list. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	rules []Rule
}

// Option customizes the default rule set.
type Option func(*settings)

type settings struct {
	noiseLabels       []string
	automatedPatterns []string
	urgentKeywords    []string
}

// WithNoiseLabels replaces the provider labels that mark bulk mail.
func WithNoiseLabels(labels []string) Option {
	return func(s *settings) {
		if len(labels) > 0 {
			s.noiseLabels = labels
		}
	}
}

// NewEngine builds an engine from rules, sorted by priority. Rules with
// equal priority keep their given order.
func NewEngine(rules ...Rule) *Engine {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return &Engine{rules: sorted}
}

// NewDefaultEngine returns the engine with the standard five rules.
func NewDefaultEngine(opts ...Option) *Engine {
	s := settings{
		noiseLabels:       DefaultNoiseLabels,
		automatedPatterns: AutomatedSenderPatterns,
		urgentKeywords:    UrgentKeywords,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return NewEngine(defaultRules(s)...)
}

// Rules returns a copy of the engine's rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Apply evaluates the rules against req and returns the first matching
// verdict, or an empty verdict with zero confidence when none match. It
// never fails.
func (e *Engine) Apply(req model.ClassificationRequest) model.RuleVerdict {
	for _, r := range e.rules {
		if r.Match(req) {
			v := r.Verdict(req)
			v.Rule = r.Name
			return v
		}
	}
	return noMatch()
}

var defaultEngine = NewDefaultEngine()

// Apply evaluates req against the default rule set.
func Apply(req model.ClassificationRequest) model.RuleVerdict {
	return defaultEngine.Apply(req)
}

func noMatch() model.RuleVerdict {
	return model.RuleVerdict{
		Category:      model.CategoryNone,
		Confidence:    0.0,
		Reason:        "No clear rule match, requires reasoning analysis",
		SkipReasoning: false,
	}
}

// fixed returns a Verdict func that always yields v.
func fixed(v model.RuleVerdict) func(model.ClassificationRequest) model.RuleVerdict {
	return func(model.ClassificationRequest) model.RuleVerdict { return v }
}

// containsAny reports whether s contains any of substrs, ignoring case.
// substrs must already be lower case.
func containsAny(s string, substrs []string) bool {
	s = strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// hasAnyLabel reports whether labels and want intersect, ignoring case.
func hasAnyLabel(labels, want []string) bool {
	for _, l := range labels {
		for _, w := range want {
			if strings.EqualFold(l, w) {
				return true
			}
		}
	}
	return false
}

func followUpReason(days int) string {
	return fmt.Sprintf("User sent last message %d days ago, likely waiting for response", days)
}

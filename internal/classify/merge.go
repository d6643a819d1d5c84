package classify

import (
	"fmt"
	"strings"

	"github.com/nhle/inbox-clarity/internal/model"
)

// DefaultOverrideThreshold is the rule confidence a verdict must exceed to
// replace the reasoning service's category.
const DefaultOverrideThreshold = 0.8

// Fixed importance scores for results decided by rules alone.
var rulesOnlyImportance = map[model.Category]float64{
	model.CategoryImportant: 0.9,
	model.CategoryFollowUp:  0.7,
	model.CategoryFYI:       0.4,
	model.CategoryNoise:     0.1,
}

// MergePolicy combines a rule verdict with a reasoning verdict. It has no
// side effects.
type MergePolicy struct {
	// OverrideThreshold is compared strictly: a rule confidence equal to
	// the threshold does not override.
	OverrideThreshold float64
}

// Merge takes the reasoning verdict in full, except that the rule's
// category wins when the rule decided one with confidence above the
// threshold.
func (p MergePolicy) Merge(
	rule model.RuleVerdict,
	reasoning model.ReasoningVerdict,
	modelUsed string,
) model.ClassificationResult {
	category := reasoning.Category
	if rule.Category.IsSet() && rule.Confidence > p.OverrideThreshold {
		category = rule.Category
	}

	return model.ClassificationResult{
		Category:        category,
		ImportanceScore: reasoning.ImportanceScore,
		RequiresReply:   reasoning.RequiresReply,
		WaitingForReply: reasoning.WaitingForReply,
		HasDeadline:     reasoning.HasDeadline,
		DeadlineAt:      reasoning.DeadlineAt,
		Summary:         reasoning.Summary,
		Reason:          reasoning.Reason,
		ModelUsed:       modelUsed,
		Degraded:        reasoning.FailureCause,
	}
}

// RulesOnly builds the final result straight from a skipping rule verdict.
func RulesOnly(rule model.RuleVerdict, from string) model.ClassificationResult {
	return model.ClassificationResult{
		Category:        rule.Category,
		ImportanceScore: rulesOnlyImportance[rule.Category],
		RequiresReply:   rule.Category == model.CategoryImportant || rule.Category == model.CategoryFollowUp,
		WaitingForReply: rule.Category == model.CategoryFollowUp,
		HasDeadline:     false,
		Summary:         fmt.Sprintf("%s email from %s", strings.ToLower(string(rule.Category)), from),
		Reason:          rule.Reason,
		ModelUsed:       model.ModelRulesOnly,
	}
}

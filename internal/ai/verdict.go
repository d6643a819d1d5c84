package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/nhle/inbox-clarity/internal/model"
)

const (
	maxTextLength     = 200
	defaultImportance = 0.5
)

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseVerdict validates the tool input and coerces it into a verdict.
// category, summary and reason are required; everything else is coerced.
func parseVerdict(input json.RawMessage) (model.ReasoningVerdict, error) {
	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return model.ReasoningVerdict{}, fmt.Errorf("decoding verdict: %w", err)
	}
	if fields == nil {
		return model.ReasoningVerdict{}, errors.New("decoding verdict: not an object")
	}

	var missing []string
	category, ok := model.ParseCategory(cast.ToString(fields["category"]))
	if !ok {
		if s := cast.ToString(fields["category"]); s != "" {
			return model.ReasoningVerdict{}, fmt.Errorf("invalid category %q", s)
		}
		missing = append(missing, "category")
	}
	summary := requiredText(fields, "summary")
	if summary == "" {
		missing = append(missing, "summary")
	}
	reason := requiredText(fields, "reason")
	if reason == "" {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return model.ReasoningVerdict{}, fmt.Errorf("verdict missing required fields: %s", strings.Join(missing, ", "))
	}

	return model.ReasoningVerdict{
		Category:        category,
		ImportanceScore: importance(fields["importanceScore"]),
		RequiresReply:   cast.ToBool(fields["requiresReply"]),
		WaitingForReply: cast.ToBool(fields["waitingForReply"]),
		HasDeadline:     cast.ToBool(fields["hasDeadline"]),
		DeadlineAt:      parseDeadline(fields["deadlineISO"]),
		Summary:         truncate(summary, maxTextLength),
		Reason:          truncate(reason, maxTextLength),
	}, nil
}

// Fallback is the verdict used when the reasoning service could not be
// consulted or returned something unusable.
func Fallback(req model.ClassificationRequest, cause error) model.ReasoningVerdict {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return model.ReasoningVerdict{
		Category:        model.CategoryFYI,
		ImportanceScore: defaultImportance,
		Summary:         truncate(fmt.Sprintf("Email from %s: %s", req.From, req.Subject), maxTextLength),
		Reason:          truncate("reasoning call failed: "+msg, maxTextLength),
		FailureCause:    msg,
	}
}

func requiredText(fields map[string]any, key string) string {
	s, err := cast.ToStringE(fields[key])
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// importance clamps v into [0,1]. Missing or non-numeric values become 0.5.
func importance(v any) float64 {
	if v == nil {
		return defaultImportance
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) {
		return defaultImportance
	}
	return math.Max(0, math.Min(1, f))
}

func parseDeadline(v any) *time.Time {
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

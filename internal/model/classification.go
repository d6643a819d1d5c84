package model

import (
	"strings"
	"time"
)

// Category is the clarity bucket an email is sorted into.
type Category string

const (
	CategoryImportant Category = "IMPORTANT"
	CategoryFollowUp  Category = "FOLLOW_UP"
	CategoryNoise     Category = "NOISE"
	CategoryFYI       Category = "FYI"

	// CategoryNone marks a verdict that did not decide a category.
	CategoryNone Category = ""
)

// ModelRulesOnly is reported as the model of results decided by rules alone.
const ModelRulesOnly = "rules-only"

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryImportant,
	CategoryFollowUp,
	CategoryNoise,
	CategoryFYI,
}

// ParseCategory converts s (case-insensitive) into a Category. The second
// return value is false when s names no known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return CategoryNone, false
}

// IsSet reports whether c names a category.
func (c Category) IsSet() bool {
	return c != CategoryNone
}

// ClassificationRequest is everything the rules and the reasoning service
// look at for a single email: the normalized fields plus the user's
// session and thread context.
type ClassificationRequest struct {
	Subject  string   `json:"subject"`
	Snippet  string   `json:"snippet"`
	FullBody string   `json:"fullBody,omitempty"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	Cc       []string `json:"cc"`
	Labels   []string `json:"labels"`

	IsNewsletter bool   `json:"isNewsletter"`
	UserEmail    string `json:"userEmail"`

	// UserWasLastSender is true when the newest message in the thread was
	// written by the user.
	UserWasLastSender bool `json:"userWasLastSender"`

	// DaysSinceLastMessage is never negative.
	DaysSinceLastMessage int `json:"daysSinceLastMessage"`

	// ThreadLength is at least 1.
	ThreadLength int `json:"threadLength"`
}

// UserInTo reports whether the user's address is among the To recipients.
func (r ClassificationRequest) UserInTo() bool {
	return containsAddress(r.To, r.UserEmail)
}

// UserInCc reports whether the user's address is among the Cc recipients.
func (r ClassificationRequest) UserInCc() bool {
	return containsAddress(r.Cc, r.UserEmail)
}

func containsAddress(list []string, addr string) bool {
	if addr == "" {
		return false
	}
	for _, a := range list {
		if strings.EqualFold(strings.TrimSpace(a), addr) {
			return true
		}
	}
	return false
}

// RuleVerdict is the outcome of the rule engine for one request.
type RuleVerdict struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`

	// SkipReasoning is set when the verdict is authoritative enough to
	// bypass the reasoning service.
	SkipReasoning bool `json:"skipReasoning"`

	// Rule names the rule that matched; empty when none did.
	Rule string `json:"rule,omitempty"`
}

// ReasoningVerdict is the validated reply of the reasoning service, or the
// fallback substituted for it.
type ReasoningVerdict struct {
	Category        Category   `json:"category"`
	ImportanceScore float64    `json:"importanceScore"`
	RequiresReply   bool       `json:"requiresReply"`
	WaitingForReply bool       `json:"waitingForReply"`
	HasDeadline     bool       `json:"hasDeadline"`
	DeadlineAt      *time.Time `json:"deadlineISO"`
	Summary         string     `json:"summary"`
	Reason          string     `json:"reason"`

	// FailureCause is set when this is a fallback verdict.
	FailureCause string `json:"-"`
}

// IsFallback reports whether the verdict was substituted after a failed
// reasoning call.
func (v ReasoningVerdict) IsFallback() bool {
	return v.FailureCause != ""
}

// ClassificationResult is the final record returned for an email.
type ClassificationResult struct {
	Category        Category   `json:"category"`
	ImportanceScore float64    `json:"importanceScore"`
	RequiresReply   bool       `json:"requiresReply"`
	WaitingForReply bool       `json:"waitingForReply"`
	HasDeadline     bool       `json:"hasDeadline"`
	DeadlineAt      *time.Time `json:"deadlineISO"`
	Summary         string     `json:"summary"`
	Reason          string     `json:"reason"`
	ModelUsed       string     `json:"modelUsed"`

	// Degraded carries the reasoning failure cause when the result was
	// built from a fallback verdict.
	Degraded string `json:"-"`
}

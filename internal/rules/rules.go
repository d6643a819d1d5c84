package rules

import (
	"strings"

	"github.com/nhle/inbox-clarity/internal/model"
)

// Rule names, in priority order.
const (
	RuleBulkMail  = "bulk-mail"
	RuleAutomated = "automated-sender"
	RuleFollowUp  = "follow-up"
	RuleCcOnly    = "cc-only"
	RuleUrgent    = "urgent"
)

// DefaultNoiseLabels are the provider labels treated as bulk mail.
var DefaultNoiseLabels = []string{
	"CATEGORY_PROMOTIONS",
	"CATEGORY_SOCIAL",
	"CATEGORY_UPDATES",
	model.LabelSpam,
}

// AutomatedSenderPatterns mark mail sent by systems rather than people.
var AutomatedSenderPatterns = []string{
	"noreply",
	"no-reply",
	"donotreply",
	"automated",
	"notification",
	"support@",
	"help@",
	"system@",
}

// UrgentKeywords are subject keywords that signal required action.
var UrgentKeywords = []string{
	"urgent",
	"asap",
	"immediate",
	"deadline",
	"action required",
}

const (
	followUpMinDays   = 2
	meetingMaxDays    = 1
	automatedOverride = "urgent"
	meetingKeyword    = "meeting"
)

func defaultRules(s settings) []Rule {
	return []Rule{
		{
			Name:     RuleBulkMail,
			Priority: 1,
			Match: func(req model.ClassificationRequest) bool {
				return req.IsNewsletter || hasAnyLabel(req.Labels, s.noiseLabels)
			},
			Verdict: fixed(model.RuleVerdict{
				Category:      model.CategoryNoise,
				Confidence:    0.95,
				Reason:        "Newsletter, promotion, or social notification detected",
				SkipReasoning: true,
			}),
		},
		{
			Name:     RuleAutomated,
			Priority: 2,
			Match: func(req model.ClassificationRequest) bool {
				return containsAny(req.From, s.automatedPatterns) &&
					!strings.Contains(strings.ToLower(req.Subject), automatedOverride)
			},
			Verdict: fixed(model.RuleVerdict{
				Category:      model.CategoryNoise,
				Confidence:    0.8,
				Reason:        "Automated system email detected",
				SkipReasoning: true,
			}),
		},
		{
			Name:     RuleFollowUp,
			Priority: 3,
			Match: func(req model.ClassificationRequest) bool {
				return req.UserWasLastSender && req.DaysSinceLastMessage >= followUpMinDays
			},
			Verdict: func(req model.ClassificationRequest) model.RuleVerdict {
				return model.RuleVerdict{
					Category:   model.CategoryFollowUp,
					Confidence: 0.85,
					Reason:     followUpReason(req.DaysSinceLastMessage),
				}
			},
		},
		{
			Name:     RuleCcOnly,
			Priority: 4,
			Match: func(req model.ClassificationRequest) bool {
				return !req.UserInTo() && req.UserInCc() &&
					!containsAny(req.Subject, s.urgentKeywords)
			},
			Verdict: fixed(model.RuleVerdict{
				Category:   model.CategoryFYI,
				Confidence: 0.75,
				Reason:     "User only in CC without urgent signals",
			}),
		},
		{
			Name:     RuleUrgent,
			Priority: 5,
			Match: func(req model.ClassificationRequest) bool {
				if containsAny(req.Subject, s.urgentKeywords) {
					return true
				}
				return strings.Contains(strings.ToLower(req.Subject), meetingKeyword) &&
					req.DaysSinceLastMessage <= meetingMaxDays
			},
			Verdict: fixed(model.RuleVerdict{
				Category:   model.CategoryImportant,
				Confidence: 0.8,
				Reason:     "Urgent keywords or recent meeting-related email detected",
			}),
		},
	}
}

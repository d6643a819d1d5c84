package sync

import (
	"strings"
	"time"

	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/source"
)

// BuildRequest combines a normalized email with its thread context. info
// may be nil when the provider cannot describe threads; the email itself
// then stands in for the thread.
func BuildRequest(
	email *model.NormalizedEmail,
	userEmail string,
	info *source.ThreadInfo,
	now time.Time,
) model.ClassificationRequest {
	lastSender := email.From
	lastAt := email.Timestamp
	length := 1
	if info != nil {
		if info.LastSender != "" {
			lastSender = info.LastSender
		}
		if !info.LastMessageAt.IsZero() {
			lastAt = info.LastMessageAt
		}
		length = max(info.MessageCount, 1)
	}

	return model.ClassificationRequest{
		Subject:              email.Subject,
		Snippet:              email.Snippet,
		FullBody:             email.Body,
		From:                 email.From,
		To:                   nonNil(email.To),
		Cc:                   nonNil(email.Cc),
		Labels:               nonNil(email.Labels),
		IsNewsletter:         email.HasListHeaders,
		UserEmail:            userEmail,
		UserWasLastSender:    userEmail != "" && strings.EqualFold(strings.TrimSpace(lastSender), userEmail),
		DaysSinceLastMessage: daysSince(lastAt, now),
		ThreadLength:         length,
	}
}

// daysSince returns the whole days elapsed between t and now, never
// negative. A zero t counts as now.
func daysSince(t, now time.Time) int {
	if t.IsZero() || !now.After(t) {
		return 0
	}
	return int(now.Sub(t) / (24 * time.Hour))
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// threadRecord builds the stored thread summary for a classified email.
func threadRecord(
	email *model.NormalizedEmail,
	req model.ClassificationRequest,
	info *source.ThreadInfo,
) model.Thread {
	lastAt := email.Timestamp
	participants := participantsOf(email)
	if info != nil {
		if !info.LastMessageAt.IsZero() {
			lastAt = info.LastMessageAt
		}
		if len(info.Participants) > 0 {
			participants = info.Participants
		}
	}

	return model.Thread{
		UserEmail:        req.UserEmail,
		ProviderThreadID: email.ThreadID,
		LastMessageID:    email.MessageID,
		Subject:          email.Subject,
		Participants:     participants,
		LastMessageAt:    lastAt,
		MessageCount:     req.ThreadLength,
		Labels:           email.Labels,
		IsUnread:         email.IsUnread,
	}
}

func participantsOf(email *model.NormalizedEmail) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{{email.From}, email.To, email.Cc} {
		for _, addr := range group {
			addr = strings.ToLower(strings.TrimSpace(addr))
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// insightRecord converts a result into the stored insight for threadID.
func insightRecord(
	userEmail, threadID string,
	result model.ClassificationResult,
	evaluatedAt time.Time,
) model.Insight {
	return model.Insight{
		UserEmail:       userEmail,
		ThreadID:        threadID,
		Category:        result.Category,
		ImportanceScore: result.ImportanceScore,
		RequiresReply:   result.RequiresReply,
		WaitingForReply: result.WaitingForReply,
		HasDeadline:     result.HasDeadline,
		DeadlineAt:      result.DeadlineAt,
		Summary:         result.Summary,
		Reason:          result.Reason,
		ModelUsed:       result.ModelUsed,
		EvaluatedAt:     evaluatedAt,
	}
}

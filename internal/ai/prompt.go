package ai

import (
	"fmt"
	"strings"

	"github.com/nhle/inbox-clarity/internal/model"
)

const systemPrompt = `You are an inbox clarity engine. You classify emails for a busy professional.

Categories:
- IMPORTANT: directly impacts the user's work, deadlines, decisions, or key relationships
- FOLLOW_UP: the user previously responded or committed, is waiting for a reply, or needs to ping again
- NOISE: newsletters, promotions, bulk mail, automated notifications that don't need action
- FYI: information-only emails that may be useful but don't require a reply

Always answer by calling the record_classification tool exactly once.`

// buildUserPrompt renders the request fields the service sees. The body is
// never included.
func buildUserPrompt(req model.ClassificationRequest) string {
	labels := "none"
	if len(req.Labels) > 0 {
		labels = strings.Join(req.Labels, ", ")
	}

	var sb strings.Builder
	sb.WriteString("Classify this email:\n\n")
	fmt.Fprintf(&sb, "Subject: %s\n", req.Subject)
	fmt.Fprintf(&sb, "From: %s\n", req.From)
	fmt.Fprintf(&sb, "Snippet: %s\n", req.Snippet)
	fmt.Fprintf(&sb, "Labels: %s\n", labels)
	fmt.Fprintf(&sb, "User was last sender: %t\n", req.UserWasLastSender)
	fmt.Fprintf(&sb, "Days since last message: %d\n", req.DaysSinceLastMessage)
	fmt.Fprintf(&sb, "Thread length: %d\n", req.ThreadLength)
	fmt.Fprintf(&sb, "User in TO: %t\n", req.UserInTo())
	fmt.Fprintf(&sb, "User in CC: %t", req.UserInCc())
	return sb.String()
}

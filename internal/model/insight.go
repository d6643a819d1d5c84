package model

import "time"

// Importance levels stored alongside each insight.
const (
	ImportanceHigh   = "high"
	ImportanceMedium = "medium"
	ImportanceLow    = "low"
)

// ImportanceLevel buckets an importance score into high, medium or low.
func ImportanceLevel(score float64) string {
	switch {
	case score >= 0.8:
		return ImportanceHigh
	case score >= 0.5:
		return ImportanceMedium
	default:
		return ImportanceLow
	}
}

// Thread is the stored summary of a mail conversation.
type Thread struct {
	// ID is the internal unique identifier for this thread.
	ID string `json:"id"`

	// UserEmail identifies the mailbox owner.
	UserEmail string `json:"user_email"`

	// ProviderThreadID is the thread identifier within the mail provider.
	ProviderThreadID string `json:"provider_thread_id"`

	// LastMessageID is the provider id of the newest classified message.
	LastMessageID string `json:"last_message_id"`

	Subject       string    `json:"subject"`
	Participants  []string  `json:"participants"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
	Labels        []string  `json:"labels"`
	IsUnread      bool      `json:"is_unread"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Insight is the stored classification of a thread. There is at most one
// insight per user and thread; re-classification replaces it.
type Insight struct {
	ID              string     `json:"id"`
	UserEmail       string     `json:"user_email"`
	ThreadID        string     `json:"thread_id"`
	Category        Category   `json:"category"`
	ImportanceScore float64    `json:"importance_score"`
	ImportanceLevel string     `json:"importance_level"`
	RequiresReply   bool       `json:"requires_reply"`
	WaitingForReply bool       `json:"waiting_for_reply"`
	HasDeadline     bool       `json:"has_deadline"`
	DeadlineAt      *time.Time `json:"deadline_at,omitempty"`
	Summary         string     `json:"summary"`
	Reason          string     `json:"reason"`
	ModelUsed       string     `json:"model_used"`
	EvaluatedAt     time.Time  `json:"evaluated_at"`
}

package store

import (
	"context"

	"github.com/nhle/inbox-clarity/internal/model"
)

// InsightFilter controls filtering and pagination for insight queries.
type InsightFilter struct {
	UserEmail *string
	Category  *model.Category
	Limit     int
	Offset    int
}

// Store defines the persistence interface for classified threads and their
// insights.
type Store interface {
	// UpsertThread inserts or updates the thread identified by its user and
	// provider thread id and returns the stored row id.
	UpsertThread(ctx context.Context, t model.Thread) (string, error)
	GetThread(ctx context.Context, userEmail, providerThreadID string) (*model.Thread, error)

	// UpsertInsight inserts or replaces the insight for a user's thread.
	UpsertInsight(ctx context.Context, in model.Insight) error
	GetInsights(ctx context.Context, filter InsightFilter) ([]model.Insight, error)
	CountInsightsByCategory(ctx context.Context, userEmail string) (map[model.Category]int, error)
}

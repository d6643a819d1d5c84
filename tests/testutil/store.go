// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/store"
)

// UserEmail is the mailbox owner used by fixtures.
const UserEmail = "user@example.com"

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewFileStore creates a SQLiteStore backed by a file in a temporary
// directory, with a real connection pool.
func NewFileStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "clarity.db"))
	if err != nil {
		t.Fatalf("creating file store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing file store: %v", err)
		}
	})

	return s
}

// Thread returns a thread fixture owned by UserEmail.
func Thread(providerThreadID string) model.Thread {
	return model.Thread{
		UserEmail:        UserEmail,
		ProviderThreadID: providerThreadID,
		LastMessageID:    providerThreadID + "-m1",
		Subject:          "Subject of " + providerThreadID,
		Participants:     []string{"alice@example.com", UserEmail},
		LastMessageAt:    time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC),
		MessageCount:     1,
		Labels:           []string{model.LabelInbox},
	}
}

// SeedThread stores a thread fixture and returns its row id.
func SeedThread(t *testing.T, s store.Store, providerThreadID string) string {
	t.Helper()

	id, err := s.UpsertThread(context.Background(), Thread(providerThreadID))
	if err != nil {
		t.Fatalf("seeding thread %s: %v", providerThreadID, err)
	}
	return id
}

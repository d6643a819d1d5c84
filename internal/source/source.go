// Package source defines the mail provider contract used by batch refreshes.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/inbox-clarity/internal/model"
)

// ProviderType identifies the kind of mailbox integration.
type ProviderType string

const (
	ProviderGmail ProviderType = "gmail"
	ProviderIMAP  ProviderType = "imap"
)

// AuthError indicates that authentication has failed or expired for a
// mailbox. Providers return it for 401 responses and rejected logins; it is
// never retried.
type AuthError struct {
	Provider ProviderType
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ListOptions bounds a listing of recent messages.
type ListOptions struct {
	// Query is a provider search expression. Providers without a query
	// language ignore it.
	Query string

	// MaxResults caps the number of ids returned; zero means provider
	// default.
	MaxResults int
}

// MailProvider lists and fetches messages from a mailbox.
type MailProvider interface {
	// Type returns the provider type identifier.
	Type() ProviderType

	// ListRecent returns the ids of recent messages, newest first.
	ListRecent(ctx context.Context, opts ListOptions) ([]string, error)

	// FetchMessage retrieves the full message tree for id.
	FetchMessage(ctx context.Context, id string) (*model.RawMessage, error)
}

// ThreadInfo summarizes the conversation a message belongs to.
type ThreadInfo struct {
	MessageCount  int
	LastSender    string
	LastMessageAt time.Time
	Participants  []string
}

// ThreadReader is implemented by providers that can describe a whole
// thread. Without it, a message is treated as a thread of one.
type ThreadReader interface {
	ThreadInfo(ctx context.Context, threadID string) (*ThreadInfo, error)
}

// Package email reads a mailbox over IMAP.
package email

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/source"
)

const defaultLookbackDays = 3

// mailbox is the part of IMAPClient the provider depends on.
type mailbox interface {
	SearchSince(ctx context.Context, since time.Time, limit int) ([]imap.UID, error)
	FetchRFC822(ctx context.Context, uid imap.UID) (*FetchedMessage, error)
}

// Provider implements source.MailProvider for an IMAP INBOX. Message ids
// are IMAP UIDs in decimal.
type Provider struct {
	client       mailbox
	lookbackDays int
	now          func() time.Time
}

// NewProvider creates an IMAP provider. lookbackDays bounds the search
// window; zero or negative means three days.
func NewProvider(client *IMAPClient, lookbackDays int) *Provider {
	return newProvider(client, lookbackDays)
}

func newProvider(client mailbox, lookbackDays int) *Provider {
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}
	return &Provider{
		client:       client,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// Type returns the provider type identifier for IMAP.
func (p *Provider) Type() source.ProviderType {
	return source.ProviderIMAP
}

// ListRecent returns the UIDs of messages received within the lookback
// window, newest first. The query is ignored.
func (p *Provider) ListRecent(
	ctx context.Context,
	opts source.ListOptions,
) ([]string, error) {
	since := p.now().AddDate(0, 0, -p.lookbackDays)

	uids, err := p.client.SearchSince(ctx, since, opts.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("listing recent IMAP messages: %w", err)
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// FetchMessage fetches and converts the message with the given UID.
func (p *Provider) FetchMessage(
	ctx context.Context,
	id string,
) (*model.RawMessage, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	fm, err := p.client.FetchRFC822(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("fetching IMAP message %s: %w", id, err)
	}

	return toRawMessage(id, fm)
}

// parseUID converts a message id string to an IMAP UID.
func parseUID(id string) (imap.UID, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil || uid == 0 {
		return 0, fmt.Errorf("invalid IMAP UID %q", id)
	}
	return imap.UID(uid), nil
}

// Package gmail reads a mailbox through the Gmail API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/normalize"
	"github.com/nhle/inbox-clarity/internal/source"
)

const (
	user            = "me"
	defaultQuery    = "newer_than:3d in:inbox"
	defaultMaxItems = 50
	maxPageSize     = 500
)

// Provider implements source.MailProvider and source.ThreadReader on top
// of the Gmail API.
type Provider struct {
	srv *gmailapi.Service
}

// NewProvider creates a provider using an already authorized HTTP client.
// Extra client options (such as an endpoint override) are passed through.
func NewProvider(
	ctx context.Context,
	httpClient *http.Client,
	opts ...option.ClientOption,
) (*Provider, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Gmail service: %w", err)
	}
	return &Provider{srv: srv}, nil
}

// Type returns the provider type identifier for Gmail.
func (p *Provider) Type() source.ProviderType {
	return source.ProviderGmail
}

// ListRecent returns ids of messages matching opts.Query (by default
// "newer_than:3d in:inbox"), newest first, following pages until
// opts.MaxResults ids are collected.
func (p *Provider) ListRecent(
	ctx context.Context,
	opts source.ListOptions,
) ([]string, error) {
	query := opts.Query
	if query == "" {
		query = defaultQuery
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = defaultMaxItems
	}

	var ids []string
	pageToken := ""
	for len(ids) < limit {
		call := p.srv.Users.Messages.List(user).
			Q(query).
			MaxResults(int64(min(limit-len(ids), maxPageSize))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, wrapError("listing messages", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// FetchMessage retrieves the full message tree for id.
func (p *Provider) FetchMessage(
	ctx context.Context,
	id string,
) (*model.RawMessage, error) {
	msg, err := p.srv.Users.Messages.Get(user, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("fetching message "+id, err)
	}
	return fromGmail(msg), nil
}

// ThreadInfo summarizes a thread from its message metadata.
func (p *Provider) ThreadInfo(
	ctx context.Context,
	threadID string,
) (*source.ThreadInfo, error) {
	thread, err := p.srv.Users.Threads.Get(user, threadID).
		Format("metadata").
		MetadataHeaders("From", "To", "Cc", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("fetching thread "+threadID, err)
	}
	return threadInfo(thread), nil
}

func threadInfo(thread *gmailapi.Thread) *source.ThreadInfo {
	info := &source.ThreadInfo{MessageCount: len(thread.Messages)}
	if len(thread.Messages) == 0 {
		return info
	}

	seen := make(map[string]bool)
	var last *gmailapi.Message
	for _, m := range thread.Messages {
		if last == nil || m.InternalDate >= last.InternalDate {
			last = m
		}
		if m.Payload == nil {
			continue
		}
		for _, h := range m.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from", "to", "cc":
				for _, addr := range normalize.ParseAddresses(h.Value) {
					addr = strings.ToLower(addr)
					if !seen[addr] {
						seen[addr] = true
						info.Participants = append(info.Participants, addr)
					}
				}
			}
		}
	}

	info.LastMessageAt = time.UnixMilli(last.InternalDate).UTC()
	if last.Payload != nil {
		for _, h := range last.Payload.Headers {
			if strings.EqualFold(h.Name, "From") {
				if addrs := normalize.ParseAddresses(h.Value); len(addrs) > 0 {
					info.LastSender = addrs[0]
				}
				break
			}
		}
	}
	return info
}

// fromGmail converts an API message into the provider-agnostic tree.
func fromGmail(msg *gmailapi.Message) *model.RawMessage {
	return &model.RawMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
		Payload:      convertPart(msg.Payload),
	}
}

func convertPart(part *gmailapi.MessagePart) *model.MessagePart {
	if part == nil {
		return nil
	}

	out := &model.MessagePart{
		MimeType: part.MimeType,
		Filename: part.Filename,
	}
	for _, h := range part.Headers {
		out.Headers = append(out.Headers, model.Header{Name: h.Name, Value: h.Value})
	}
	if part.Body != nil {
		out.Body = &model.PartBody{Data: part.Body.Data, Size: part.Body.Size}
	}
	for _, child := range part.Parts {
		out.Parts = append(out.Parts, convertPart(child))
	}
	return out
}

// wrapError maps 401 responses to AuthError.
func wrapError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return &source.AuthError{
			Provider: source.ProviderGmail,
			Message:  fmt.Sprintf("%s: %s", op, apiErr.Message),
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

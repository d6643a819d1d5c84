package model

import "time"

// Well-known label identifiers, shared by all mail providers. Providers
// without native labels (IMAP) map their flags onto these.
const (
	LabelUnread  = "UNREAD"
	LabelStarred = "STARRED"
	LabelSpam    = "SPAM"
	LabelInbox   = "INBOX"
)

// Header is a single raw message header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PartBody holds the content of a single MIME part.
type PartBody struct {
	// Data is the part content, base64url encoded.
	Data string `json:"data,omitempty"`

	// Size is the decoded size in bytes, when known.
	Size int64 `json:"size,omitempty"`
}

// MessagePart is one node of a message's MIME tree.
type MessagePart struct {
	MimeType string         `json:"mimeType"`
	Filename string         `json:"filename,omitempty"`
	Headers  []Header       `json:"headers,omitempty"`
	Body     *PartBody      `json:"body,omitempty"`
	Parts    []*MessagePart `json:"parts,omitempty"`
}

// RawMessage is a message as handed over by a mail provider, before any
// normalization. Its shape follows the Gmail message resource so the Gmail
// provider can pass messages through almost unchanged; other providers
// build the same tree from RFC 822 content.
type RawMessage struct {
	// ID is the provider's opaque message identifier.
	ID string `json:"id"`

	// ThreadID is the provider's opaque conversation identifier.
	ThreadID string `json:"threadId"`

	// LabelIDs lists provider labels (e.g., INBOX, UNREAD, CATEGORY_SOCIAL).
	LabelIDs []string `json:"labelIds,omitempty"`

	// Snippet is the provider's short preview of the message text.
	Snippet string `json:"snippet,omitempty"`

	// InternalDate is the receive time in milliseconds since the epoch.
	InternalDate int64 `json:"internalDate,omitempty"`

	// Payload is the root of the MIME tree.
	Payload *MessagePart `json:"payload,omitempty"`
}

// NormalizedEmail is the flat, provider-agnostic view of a message that
// all classification logic works from. It is produced once per message
// and never modified afterwards.
type NormalizedEmail struct {
	MessageID string
	ThreadID  string
	Subject   string

	// From is the sender's address (display name removed when parseable).
	From string

	To []string
	Cc []string

	Snippet string

	// Body is the extracted text, at most MaxBodyLength characters.
	Body string

	// BodyTruncated reports whether Body was cut and suffixed with the
	// truncation marker.
	BodyTruncated bool

	Labels    []string
	Timestamp time.Time
	IsUnread  bool

	// HasListHeaders reports a List-Unsubscribe or List-Id header, which
	// marks bulk or newsletter mail.
	HasListHeaders bool
}

// HasLabel reports whether the email carries the given label.
func (e *NormalizedEmail) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

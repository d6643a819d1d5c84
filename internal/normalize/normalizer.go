// Package normalize turns raw provider messages into NormalizedEmail
// records: header lookup, address parsing, body extraction and truncation.
package normalize

import (
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/nhle/inbox-clarity/internal/model"
)

// DefaultMaxBodyLength is the body length limit, in characters, used when
// none is configured.
const DefaultMaxBodyLength = 10000

// defaultSubject replaces a missing Subject header.
const defaultSubject = "No Subject"

// MalformedMessageError indicates that a raw message lacks one of the
// identifiers or the payload required to normalize it.
type MalformedMessageError struct {
	MessageID string
	Missing   []string
}

func (e *MalformedMessageError) Error() string {
	id := e.MessageID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("malformed message %s: missing %s", id, strings.Join(e.Missing, ", "))
}

// IsMalformed reports whether err (or any error in its chain) is a
// MalformedMessageError.
func IsMalformed(err error) bool {
	var malformed *MalformedMessageError
	return errors.As(err, &malformed)
}

// Normalizer extracts NormalizedEmail records from raw messages. The zero
// value is usable and applies DefaultMaxBodyLength.
type Normalizer struct {
	MaxBodyLength int
}

// New creates a Normalizer with the given body length limit. A limit of
// zero or less selects DefaultMaxBodyLength.
func New(maxBodyLength int) *Normalizer {
	return &Normalizer{MaxBodyLength: maxBodyLength}
}

func (n *Normalizer) maxBodyLength() int {
	if n == nil || n.MaxBodyLength <= 0 {
		return DefaultMaxBodyLength
	}
	return n.MaxBodyLength
}

// Normalize produces a NormalizedEmail from raw. It fails only when the
// message id, thread id or payload is missing; every other defect (absent
// headers, unparsable addresses, undecodable parts) degrades to empty
// values.
func (n *Normalizer) Normalize(raw *model.RawMessage) (*model.NormalizedEmail, error) {
	if raw == nil {
		return nil, &MalformedMessageError{Missing: []string{"message"}}
	}

	var missing []string
	if raw.ID == "" {
		missing = append(missing, "message id")
	}
	if raw.ThreadID == "" {
		missing = append(missing, "thread id")
	}
	if raw.Payload == nil {
		missing = append(missing, "payload")
	}
	if len(missing) > 0 {
		return nil, &MalformedMessageError{MessageID: raw.ID, Missing: missing}
	}

	headers := raw.Payload.Headers

	subject := strings.TrimSpace(header(headers, "Subject"))
	if subject == "" {
		subject = defaultSubject
	}

	fromHeader := header(headers, "From")
	from := strings.TrimSpace(fromHeader)
	if addrs := ParseAddresses(fromHeader); len(addrs) > 0 {
		from = addrs[0]
	}

	body, truncated := Truncate(extractBody(raw.Payload), n.maxBodyLength())
	if strings.TrimSpace(body) == "" {
		body = raw.Snippet
		truncated = false
	}

	labels := make([]string, len(raw.LabelIDs))
	copy(labels, raw.LabelIDs)

	email := &model.NormalizedEmail{
		MessageID:      raw.ID,
		ThreadID:       raw.ThreadID,
		Subject:        subject,
		From:           from,
		To:             ParseAddresses(header(headers, "To")),
		Cc:             ParseAddresses(header(headers, "Cc")),
		Snippet:        raw.Snippet,
		Body:           body,
		BodyTruncated:  truncated,
		Labels:         labels,
		Timestamp:      timestamp(raw),
		HasListHeaders: header(headers, "List-Unsubscribe") != "" || header(headers, "List-Id") != "",
	}
	email.IsUnread = email.HasLabel(model.LabelUnread)

	return email, nil
}

// header returns the value of the first header named name, compared
// case-insensitively, or "" when absent.
func header(headers []model.Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// timestamp prefers the provider's receive time and falls back to the Date
// header. Messages with neither get the zero time.
func timestamp(raw *model.RawMessage) time.Time {
	if raw.InternalDate > 0 {
		return time.UnixMilli(raw.InternalDate).UTC()
	}
	if date := header(raw.Payload.Headers, "Date"); date != "" {
		if t, err := netmail.ParseDate(date); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

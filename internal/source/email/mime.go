package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/inbox-clarity/internal/model"
)

const (
	snippetLength = 200
	flagJunk      = imap.Flag("$Junk")
)

// toRawMessage converts an RFC 822 message into the provider-agnostic
// message tree. Leaf bodies are decoded from their transfer encoding and
// charset and re-encoded as base64url.
func toRawMessage(id string, fm *FetchedMessage) (*model.RawMessage, error) {
	entity, err := message.Read(bytes.NewReader(fm.Literal))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("parsing message %s: %w", id, err)
	}

	var snippet string
	payload, err := convertEntity(entity, &snippet)
	if err != nil {
		return nil, fmt.Errorf("reading message %s: %w", id, err)
	}

	raw := &model.RawMessage{
		ID:       id,
		ThreadID: threadID(entity.Header, id),
		LabelIDs: labelsFromFlags(fm.Flags),
		Snippet:  snippet,
		Payload:  payload,
	}
	switch {
	case !fm.InternalDate.IsZero():
		raw.InternalDate = fm.InternalDate.UnixMilli()
	case !messageTime(entity.Header).IsZero():
		raw.InternalDate = messageTime(entity.Header).UnixMilli()
	}
	return raw, nil
}

// convertEntity walks entity depth-first. The first text/plain leaf fills
// snippet when it is still empty.
func convertEntity(entity *message.Entity, snippet *string) (*model.MessagePart, error) {
	part := &model.MessagePart{
		MimeType: "text/plain",
		Headers:  headerList(entity.Header),
	}

	if t, params, err := entity.Header.ContentType(); err == nil && t != "" {
		part.MimeType = t
		if name := params["name"]; name != "" {
			part.Filename = name
		}
	}
	if _, params, err := entity.Header.ContentDisposition(); err == nil {
		if name := params["filename"]; name != "" {
			part.Filename = name
		}
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return nil, fmt.Errorf("reading multipart: %w", err)
			}
			converted, err := convertEntity(child, snippet)
			if err != nil {
				return nil, err
			}
			part.Parts = append(part.Parts, converted)
		}
		return part, nil
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	part.Body = &model.PartBody{
		Data: base64.URLEncoding.EncodeToString(body),
		Size: int64(len(body)),
	}

	if *snippet == "" && part.Filename == "" && strings.HasPrefix(part.MimeType, "text/plain") {
		*snippet = makeSnippet(string(body))
	}
	return part, nil
}

func headerList(h message.Header) []model.Header {
	var headers []model.Header
	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		headers = append(headers, model.Header{Name: fields.Key(), Value: value})
	}
	return headers
}

// threadID groups replies with their root message: the first References
// entry, else In-Reply-To, else the message's own Message-ID, else the
// mailbox id.
func threadID(h message.Header, fallback string) string {
	mh := mail.Header{Header: h}

	if refs, err := mh.MsgIDList("References"); err == nil && len(refs) > 0 {
		return refs[0]
	}
	if parents, err := mh.MsgIDList("In-Reply-To"); err == nil && len(parents) > 0 {
		return parents[0]
	}
	if id, err := mh.MessageID(); err == nil && id != "" {
		return id
	}
	return "uid-" + fallback
}

// labelsFromFlags maps IMAP flags to the label vocabulary the rules use.
func labelsFromFlags(flags []imap.Flag) []string {
	labels := []string{model.LabelInbox}
	seen := false
	for _, f := range flags {
		switch {
		case f == imap.FlagSeen:
			seen = true
		case f == imap.FlagFlagged:
			labels = append(labels, model.LabelStarred)
		case strings.EqualFold(string(f), string(flagJunk)) || strings.EqualFold(string(f), "Junk"):
			labels = append(labels, model.LabelSpam)
		}
	}
	if !seen {
		labels = append(labels, model.LabelUnread)
	}
	return labels
}

func makeSnippet(body string) string {
	text := strings.Join(strings.Fields(body), " ")
	runes := []rune(text)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength])
	}
	return text
}

// messageTime is the Date header of h, or the zero time.
func messageTime(h message.Header) time.Time {
	mh := mail.Header{Header: h}
	t, err := mh.Date()
	if err != nil {
		return time.Time{}
	}
	return t
}

package email

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/normalize"
	"github.com/nhle/inbox-clarity/internal/source"
)

const multipartMessage = "From: \"Alice Example\" <alice@example.com>\r\n" +
	"To: user@example.com\r\n" +
	"Cc: bob@example.com\r\n" +
	"Subject: =?UTF-8?Q?Caf=C3=A9_plans?=\r\n" +
	"Date: Thu, 02 Jan 2025 10:00:00 +0000\r\n" +
	"Message-ID: <reply-2@example.com>\r\n" +
	"In-Reply-To: <reply-1@example.com>\r\n" +
	"References: <root@example.com> <reply-1@example.com>\r\n" +
	"List-Unsubscribe: <mailto:unsubscribe@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Shall we meet at the caf=C3=A9?\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Shall we meet at the caf&eacute;?</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; name=\"agenda.txt\"\r\n" +
	"Content-Disposition: attachment; filename=\"agenda.txt\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"YWdlbmRhIGl0ZW1z\r\n" +
	"--outer--\r\n"

type fakeMailbox struct {
	uids     []imap.UID
	messages map[imap.UID]*FetchedMessage
	since    time.Time
	limit    int
	err      error
}

func (f *fakeMailbox) SearchSince(_ context.Context, since time.Time, limit int) ([]imap.UID, error) {
	f.since = since
	f.limit = limit
	return f.uids, f.err
}

func (f *fakeMailbox) FetchRFC822(_ context.Context, uid imap.UID) (*FetchedMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.messages[uid]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}

func decode(t *testing.T, part *model.MessagePart) string {
	t.Helper()
	require.NotNil(t, part.Body)
	b, err := base64.URLEncoding.DecodeString(part.Body.Data)
	require.NoError(t, err)
	return string(b)
}

func TestToRawMessageBuildsTree(t *testing.T) {
	received := time.Date(2025, 1, 2, 10, 0, 5, 0, time.UTC)
	raw, err := toRawMessage("42", &FetchedMessage{
		UID:          42,
		Flags:        []imap.Flag{imap.FlagFlagged},
		InternalDate: received,
		Literal:      []byte(multipartMessage),
	})
	require.NoError(t, err)

	assert.Equal(t, "42", raw.ID)
	assert.Equal(t, "root@example.com", raw.ThreadID)
	assert.Equal(t, received.UnixMilli(), raw.InternalDate)
	assert.ElementsMatch(t, []string{model.LabelInbox, model.LabelStarred, model.LabelUnread}, raw.LabelIDs)
	assert.Equal(t, "Shall we meet at the café?", raw.Snippet)

	require.NotNil(t, raw.Payload)
	assert.Equal(t, "multipart/mixed", raw.Payload.MimeType)
	require.Len(t, raw.Payload.Parts, 2)

	alt := raw.Payload.Parts[0]
	assert.Equal(t, "multipart/alternative", alt.MimeType)
	require.Len(t, alt.Parts, 2)
	assert.Equal(t, "text/plain", alt.Parts[0].MimeType)
	assert.Equal(t, "Shall we meet at the café?", strings.TrimSpace(decode(t, alt.Parts[0])))
	assert.Equal(t, "text/html", alt.Parts[1].MimeType)

	attachment := raw.Payload.Parts[1]
	assert.Equal(t, "agenda.txt", attachment.Filename)
	assert.Equal(t, "agenda items", decode(t, attachment))
}

func TestToRawMessageNormalizes(t *testing.T) {
	raw, err := toRawMessage("42", &FetchedMessage{
		Flags:   []imap.Flag{imap.FlagSeen},
		Literal: []byte(multipartMessage),
	})
	require.NoError(t, err)

	email, err := normalize.New(0).Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "Café plans", email.Subject)
	assert.Equal(t, "alice@example.com", email.From)
	assert.Equal(t, []string{"user@example.com"}, email.To)
	assert.Equal(t, []string{"bob@example.com"}, email.Cc)
	assert.Equal(t, "Shall we meet at the café?", strings.TrimSpace(email.Body))
	assert.NotContains(t, email.Body, "agenda")
	assert.False(t, email.IsUnread)
	assert.True(t, email.HasListHeaders)
	assert.Equal(t, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), email.Timestamp)
}

func TestThreadIDFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		want    string
	}{
		{name: "in-reply-to", headers: "In-Reply-To: <parent@x>\r\nMessage-ID: <self@x>\r\n", want: "parent@x"},
		{name: "message-id", headers: "Message-ID: <self@x>\r\n", want: "self@x"},
		{name: "no ids", headers: "", want: "uid-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			literal := tt.headers + "Subject: hi\r\nContent-Type: text/plain\r\n\r\nbody\r\n"
			raw, err := toRawMessage("7", &FetchedMessage{Literal: []byte(literal)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, raw.ThreadID)
		})
	}
}

func TestLabelsFromFlags(t *testing.T) {
	assert.Equal(t, []string{model.LabelInbox, model.LabelUnread}, labelsFromFlags(nil))
	assert.Equal(t, []string{model.LabelInbox, model.LabelSpam}, labelsFromFlags([]imap.Flag{imap.FlagSeen, "$Junk"}))
}

func TestProviderListRecent(t *testing.T) {
	fake := &fakeMailbox{uids: []imap.UID{9, 7, 3}}
	p := newProvider(fake, 5)
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ids, err := p.ListRecent(context.Background(), source.ListOptions{Query: "ignored", MaxResults: 25})
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "7", "3"}, ids)
	assert.Equal(t, now.AddDate(0, 0, -5), fake.since)
	assert.Equal(t, 25, fake.limit)
	assert.Equal(t, source.ProviderIMAP, p.Type())
}

func TestProviderFetchMessage(t *testing.T) {
	fake := &fakeMailbox{messages: map[imap.UID]*FetchedMessage{
		42: {UID: 42, Literal: []byte(multipartMessage)},
	}}
	p := newProvider(fake, 0)

	raw, err := p.FetchMessage(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", raw.ID)

	_, err = p.FetchMessage(context.Background(), "not-a-uid")
	assert.Error(t, err)

	_, err = p.FetchMessage(context.Background(), "43")
	assert.Error(t, err)
}

func TestProviderPropagatesAuthError(t *testing.T) {
	fake := &fakeMailbox{err: &source.AuthError{Provider: source.ProviderIMAP, Message: "bad password"}}
	p := newProvider(fake, 0)

	_, err := p.ListRecent(context.Background(), source.ListOptions{})
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))
}

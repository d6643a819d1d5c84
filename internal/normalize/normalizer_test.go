package normalize

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inbox-clarity/internal/model"
)

func encode(s string) *model.PartBody {
	return &model.PartBody{Data: base64.URLEncoding.EncodeToString([]byte(s)), Size: int64(len(s))}
}

func textPart(mimeType, content string) *model.MessagePart {
	return &model.MessagePart{MimeType: mimeType, Body: encode(content)}
}

func rawMessage(payload *model.MessagePart) *model.RawMessage {
	return &model.RawMessage{
		ID:           "msg-1",
		ThreadID:     "thread-1",
		LabelIDs:     []string{"INBOX", "UNREAD"},
		Snippet:      "preview text",
		InternalDate: 1700000000000,
		Payload:      payload,
	}
}

func TestNormalizeHeaders(t *testing.T) {
	payload := textPart("text/plain", "hello")
	payload.Headers = []model.Header{
		{Name: "subject", Value: "Quarterly numbers"},
		{Name: "FROM", Value: `"Alice Example" <alice@example.com>`},
		{Name: "To", Value: `Bob <bob@example.com>, carol@example.com`},
		{Name: "cc", Value: `"Doe, Jane" <jane@example.com>`},
		{Name: "List-Unsubscribe", Value: "<mailto:unsub@example.com>"},
	}

	email, err := New(0).Normalize(rawMessage(payload))
	require.NoError(t, err)

	assert.Equal(t, "msg-1", email.MessageID)
	assert.Equal(t, "thread-1", email.ThreadID)
	assert.Equal(t, "Quarterly numbers", email.Subject)
	assert.Equal(t, "alice@example.com", email.From)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, email.To)
	assert.Equal(t, []string{"jane@example.com"}, email.Cc)
	assert.True(t, email.IsUnread)
	assert.True(t, email.HasListHeaders)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), email.Timestamp)
}

func TestNormalizeMissingHeadersYieldEmptyValues(t *testing.T) {
	email, err := New(0).Normalize(rawMessage(textPart("text/plain", "body")))
	require.NoError(t, err)

	assert.Equal(t, defaultSubject, email.Subject)
	assert.Empty(t, email.From)
	assert.Empty(t, email.To)
	assert.Empty(t, email.Cc)
	assert.False(t, email.HasListHeaders)
}

func TestNormalizeMalformedMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     *model.RawMessage
		missing []string
	}{
		{
			name:    "nil message",
			raw:     nil,
			missing: []string{"message"},
		},
		{
			name:    "no identifiers",
			raw:     &model.RawMessage{Payload: textPart("text/plain", "x")},
			missing: []string{"message id", "thread id"},
		},
		{
			name:    "no payload",
			raw:     &model.RawMessage{ID: "m", ThreadID: "t"},
			missing: []string{"payload"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(0).Normalize(tt.raw)
			require.Error(t, err)
			assert.True(t, IsMalformed(err))

			var malformed *MalformedMessageError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.missing, malformed.Missing)
		})
	}
}

func TestNormalizeMultipartPrefersPlainText(t *testing.T) {
	plain := "Hi team,\n\nThe report is attached.\n"
	payload := &model.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*model.MessagePart{
			textPart("text/plain", plain),
			textPart("text/html", "<p>Hi team,</p><p>The <b>report</b> is attached.</p>"),
		},
	}

	email, err := New(0).Normalize(rawMessage(payload))
	require.NoError(t, err)
	assert.Equal(t, plain, email.Body)
	assert.False(t, email.BodyTruncated)
}

func TestNormalizeNestedMultipartConcatenatesPlainParts(t *testing.T) {
	payload := &model.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*model.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*model.MessagePart{
					textPart("text/plain", "first"),
					textPart("text/html", "<p>first</p>"),
				},
			},
			textPart("text/plain", "second"),
			{
				MimeType: "text/plain",
				Filename: "notes.txt",
				Body:     encode("attachment content"),
			},
		},
	}

	email, err := New(0).Normalize(rawMessage(payload))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", email.Body)
}

func TestNormalizeHTMLOnlyIsStripped(t *testing.T) {
	payload := &model.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*model.MessagePart{
			textPart("text/html", "<html><body><div><p>Quarterly report</p>\n\n   <p>is ready</p></div></body></html>"),
			textPart("text/html", "<p>second html part</p>"),
		},
	}

	email, err := New(0).Normalize(rawMessage(payload))
	require.NoError(t, err)

	assert.Contains(t, email.Body, "Quarterly report")
	assert.Contains(t, email.Body, "is ready")
	assert.NotContains(t, email.Body, "<")
	assert.NotContains(t, email.Body, "second html part")
	assert.NotContains(t, email.Body, "\n")
	assert.NotContains(t, email.Body, "  ")
}

func TestNormalizeEmptyBodyFallsBackToSnippet(t *testing.T) {
	payload := &model.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*model.MessagePart{
			{MimeType: "image/png", Filename: "logo.png", Body: encode("png")},
		},
	}

	email, err := New(0).Normalize(rawMessage(payload))
	require.NoError(t, err)
	assert.Equal(t, "preview text", email.Body)
}

func TestNormalizeUndecodableBodyFallsBackToSnippet(t *testing.T) {
	payload := &model.MessagePart{
		MimeType: "text/plain",
		Body:     &model.PartBody{Data: "%%% not base64 %%%"},
	}

	email, err := New(0).Normalize(rawMessage(payload))
	require.NoError(t, err)
	assert.Equal(t, "preview text", email.Body)
}

func TestNormalizeTruncatesLongBodies(t *testing.T) {
	long := strings.Repeat("abcdefghij", 20)
	n := New(50)

	first, err := n.Normalize(rawMessage(textPart("text/plain", long)))
	require.NoError(t, err)
	second, err := n.Normalize(rawMessage(textPart("text/plain", long)))
	require.NoError(t, err)

	assert.True(t, first.BodyTruncated)
	assert.Equal(t, 50, utf8.RuneCountInString(first.Body))
	assert.True(t, strings.HasSuffix(first.Body, TruncationMarker))
	assert.Equal(t, first.Body, second.Body)
}

func TestTruncateIsIdempotent(t *testing.T) {
	long := strings.Repeat("é", 12000)

	once, cut := Truncate(long, DefaultMaxBodyLength)
	require.True(t, cut)
	twice, cutAgain := Truncate(once, DefaultMaxBodyLength)

	assert.False(t, cutAgain)
	assert.Equal(t, once, twice)
	assert.Equal(t, DefaultMaxBodyLength, utf8.RuneCountInString(once))
}

func TestTruncateShortInputUnchanged(t *testing.T) {
	out, cut := Truncate("short", 10)
	assert.False(t, cut)
	assert.Equal(t, "short", out)
}

func TestNormalizeDateHeaderFallback(t *testing.T) {
	payload := textPart("text/plain", "x")
	payload.Headers = []model.Header{{Name: "Date", Value: "Mon, 02 Jan 2006 15:04:05 -0700"}}
	raw := rawMessage(payload)
	raw.InternalDate = 0

	email, err := New(0).Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC), email.Timestamp)
}

func TestParseAddresses(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "empty", value: "", want: nil},
		{name: "bare", value: "a@x.com", want: []string{"a@x.com"}},
		{name: "display name", value: `"A" <a@x.com>, B <b@y.org>`, want: []string{"a@x.com", "b@y.org"}},
		{name: "malformed token dropped", value: "a@x.com, not an address, <b@y.org", want: []string{"a@x.com", "b@y.org"}},
		{name: "no at sign", value: "undisclosed recipients", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAddresses(tt.value))
		})
	}
}

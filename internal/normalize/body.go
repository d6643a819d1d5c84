package normalize

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jaytaylor/html2text"

	"github.com/nhle/inbox-clarity/internal/model"
)

// TruncationMarker is appended to bodies cut at the length limit.
const TruncationMarker = "... [truncated]"

// extractBody returns the readable text of a payload. A payload without
// children is decoded directly. Otherwise the tree is walked depth-first:
// all text/plain parts are joined in traversal order, and only when there
// are none is the first text/html part converted to text.
func extractBody(payload *model.MessagePart) string {
	if len(payload.Parts) == 0 {
		text := decodePart(payload)
		if isMimeType(payload.MimeType, "text/html") {
			return htmlToText(text)
		}
		return text
	}

	var (
		plain     []string
		html      string
		foundHTML bool
	)

	var walk func(part *model.MessagePart)
	walk = func(part *model.MessagePart) {
		if part == nil || isAttachment(part) {
			return
		}
		switch {
		case isMimeType(part.MimeType, "text/plain"):
			if text := decodePart(part); text != "" {
				plain = append(plain, text)
			}
		case isMimeType(part.MimeType, "text/html") && !foundHTML:
			if text := decodePart(part); text != "" {
				html = text
				foundHTML = true
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	for _, child := range payload.Parts {
		walk(child)
	}

	if len(plain) > 0 {
		return strings.Join(plain, "\n")
	}
	if foundHTML {
		return htmlToText(html)
	}
	return ""
}

// Truncate cuts s to at most max characters. When s is longer, the result
// ends with TruncationMarker and is exactly max characters long, so
// truncating it again is a no-op.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}

	runes := []rune(s)
	marker := []rune(TruncationMarker)
	if max <= len(marker) {
		return string(runes[:max]), true
	}
	return string(runes[:max-len(marker)]) + TruncationMarker, true
}

// decodePart decodes a part's base64url body. Undecodable data yields "".
func decodePart(part *model.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	data, ok := decodeBase64(part.Body.Data)
	if !ok {
		return ""
	}
	return string(data)
}

// decodeBase64 accepts URL-safe and standard alphabets, padded or not.
func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, true
		}
	}
	return nil, false
}

func isMimeType(mimeType, want string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), want)
}

func isAttachment(part *model.MessagePart) bool {
	if part.Filename != "" {
		return true
	}
	return strings.HasPrefix(
		strings.ToLower(strings.TrimSpace(header(part.Headers, "Content-Disposition"))),
		"attachment",
	)
}

// htmlTagPattern matches HTML tags for the fallback stripper.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// htmlToText renders HTML as plain text with all whitespace runs collapsed
// to single spaces.
func htmlToText(html string) string {
	text, err := html2text.FromString(html, html2text.Options{
		OmitLinks: true,
		TextOnly:  true,
	})
	if err != nil {
		text = stripHTML(html)
	}
	return collapseWhitespace(text)
}

// stripHTML removes tags and decodes common entities. It is used when the
// HTML cannot be parsed.
func stripHTML(html string) string {
	result := htmlTagPattern.ReplaceAllString(html, " ")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return replacer.Replace(result)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package gmail

import (
	"encoding/base64"
	"regexp"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

var (
	scriptRegex     = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleRegex      = regexp.MustCompile(`(?is)<style.*?</style>`)
	tagRegex        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

var htmlEntityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// ExtractPlainText returns the best plain-text rendering of a message body.
// It prefers a text/plain part anywhere in the MIME tree; if none exists it
// falls back to stripping a text/html part. Returns an empty string when
// neither is present.
func ExtractPlainText(msg *gmail.Message) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}

	if part := findPartByType(msg.Payload, "text/plain"); part != nil {
		return decodeBody(part.Body.Data)
	}

	if part := findPartByType(msg.Payload, "text/html"); part != nil {
		return htmlToText(decodeBody(part.Body.Data))
	}

	return ""
}

// findPartByType walks the MIME tree depth-first, children before siblings,
// and returns the first leaf of the given type that carries body data.
func findPartByType(part *gmail.MessagePart, mimeType string) *gmail.MessagePart {
	if part == nil {
		return nil
	}

	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		return part
	}

	if strings.HasPrefix(part.MimeType, "multipart/") || len(part.Parts) > 0 {
		for _, child := range part.Parts {
			if found := findPartByType(child, mimeType); found != nil {
				return found
			}
		}
	}

	return nil
}

// decodeBody decodes a Gmail body payload. The API uses base64url, but some
// payloads show up with standard encoding, so both are tried. Undecodable
// data yields an empty string.
func decodeBody(data string) string {
	if data == "" {
		return ""
	}

	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

// htmlToText strips an HTML document down to readable text: script and
// style blocks go first, then tags, then common entities are decoded and
// whitespace is collapsed.
func htmlToText(html string) string {
	text := scriptRegex.ReplaceAllString(html, "")
	text = styleRegex.ReplaceAllString(text, "")
	text = tagRegex.ReplaceAllString(text, " ")
	text = htmlEntityReplacer.Replace(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Summary returns a one-block header summary of a message, listing the
// From, To, Subject and Date headers that are present.
func Summary(msg *gmail.Message) string {
	var b strings.Builder
	for _, name := range []string{"From", "To", "Subject", "Date"} {
		if v := HeaderValue(msg, name); v != "" {
			b.WriteString(name + ": " + v + "\n")
		}
	}
	return b.String()
}

// HeaderValue returns the value of a header on the message payload,
// matching the name case-insensitively. Returns an empty string when the
// header is absent.
func HeaderValue(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

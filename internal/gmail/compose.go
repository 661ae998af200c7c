package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// ComposeMessage holds the fields of an outbound plain-text message.
type ComposeMessage struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
}

// BuildRaw assembles an RFC 2822 plain-text message and returns it
// base64url-encoded, ready for the Gmail send API. The provider fills in
// the From header from the authenticated account.
func BuildRaw(msg ComposeMessage) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	var b strings.Builder
	writeHeaders(&b, msg)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return base64.URLEncoding.EncodeToString([]byte(b.String())), nil
}

// ReplyContext carries the headers of an original message needed to thread
// a reply correctly.
type ReplyContext struct {
	MessageID  string
	References string
	From       string
	Subject    string
	ThreadID   string
}

// ReplyContextFromMessage extracts reply threading context from a fetched
// message.
func ReplyContextFromMessage(msg *gmail.Message) ReplyContext {
	return ReplyContext{
		MessageID:  HeaderValue(msg, "Message-ID"),
		References: HeaderValue(msg, "References"),
		From:       HeaderValue(msg, "From"),
		Subject:    HeaderValue(msg, "Subject"),
		ThreadID:   msg.ThreadId,
	}
}

// BuildReplyRaw assembles a threaded reply to the message described by orig.
// The reply goes to the original sender, carries a "Re: " subject, and sets
// In-Reply-To and References so threading works in standards-compliant
// clients.
func BuildReplyRaw(orig ReplyContext, body string, cc, bcc []string) (string, error) {
	if orig.From == "" {
		return "", fmt.Errorf("original message has no From header")
	}
	if orig.MessageID == "" {
		return "", fmt.Errorf("original message has no Message-ID header")
	}

	subject := orig.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	references := orig.MessageID
	if orig.References != "" {
		references = orig.References + " " + orig.MessageID
	}

	msg := ComposeMessage{
		To:      []string{orig.From},
		Cc:      cc,
		Bcc:     bcc,
		Subject: subject,
	}

	var b strings.Builder
	writeHeaders(&b, msg)
	b.WriteString("In-Reply-To: " + orig.MessageID + "\r\n")
	b.WriteString("References: " + references + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	return base64.URLEncoding.EncodeToString([]byte(b.String())), nil
}

func writeHeaders(b *strings.Builder, msg ComposeMessage) {
	b.WriteString("To: " + strings.Join(msg.To, ", ") + "\r\n")
	b.WriteString("Subject: " + encodeSubject(msg.Subject) + "\r\n")
	if len(msg.Cc) > 0 {
		b.WriteString("Cc: " + strings.Join(msg.Cc, ", ") + "\r\n")
	}
	if len(msg.Bcc) > 0 {
		b.WriteString("Bcc: " + strings.Join(msg.Bcc, ", ") + "\r\n")
	}
}

// encodeSubject returns the subject as-is when it is printable ASCII, and
// as a single RFC 2047 encoded word otherwise.
func encodeSubject(subject string) string {
	if isPrintableASCII(subject) {
		return subject
	}
	return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(subject)) + "?="
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

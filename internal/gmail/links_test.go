package gmail

import (
	"reflect"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
)

func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name string
		msg  *gmail.Message
		want []string
	}{
		{
			name: "nil message",
			msg:  nil,
			want: nil,
		},
		{
			name: "plain text only message has no links",
			msg:  messageWithPayload(textPart("text/plain", "visit https://example.com")),
			want: nil,
		},
		{
			name: "anchors in document order",
			msg: messageWithPayload(textPart("text/html",
				`<p><a href="https://a.example.com">a</a> and <a href='http://b.example.com/path'>b</a></p>`)),
			want: []string{"https://a.example.com", "http://b.example.com/path"},
		},
		{
			name: "duplicates collapse to first occurrence",
			msg: messageWithPayload(textPart("text/html",
				`<a href="https://a.example.com">one</a><a href="https://b.example.com">two</a><a href="https://a.example.com">again</a>`)),
			want: []string{"https://a.example.com", "https://b.example.com"},
		},
		{
			name: "non-web schemes dropped",
			msg: messageWithPayload(textPart("text/html",
				`<a href="mailto:x@example.com">mail</a>`+
					`<a href="javascript:void(0)">js</a>`+
					`<a href="#section">anchor</a>`+
					`<a href="ftp://files.example.com">ftp</a>`+
					`<a href="https://keep.example.com">keep</a>`)),
			want: []string{"https://keep.example.com"},
		},
		{
			name: "tracking redirect unwrapped",
			msg: messageWithPayload(textPart("text/html",
				`<a href="https://click.tracker.example.com/r?u=https%3A%2F%2Freal.example.com%2Fpage&sig=abc">offer</a>`)),
			want: []string{"https://real.example.com/page"},
		},
		{
			name: "url param takes priority over u",
			msg: messageWithPayload(textPart("text/html",
				`<a href="https://t.example.com/r?u=https%3A%2F%2Fsecond.example.com&url=https%3A%2F%2Ffirst.example.com">x</a>`)),
			want: []string{"https://first.example.com"},
		},
		{
			name: "redirect param without absolute url kept as-is",
			msg: messageWithPayload(textPart("text/html",
				`<a href="https://t.example.com/r?u=%2Frelative%2Fpath">x</a>`)),
			want: []string{"https://t.example.com/r?u=%2Frelative%2Fpath"},
		},
		{
			name: "links collected across html parts",
			msg: messageWithPayload(&gmail.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{
					textPart("text/html", `<a href="https://a.example.com">a</a>`),
					textPart("text/html", `<a href="https://a.example.com">dup</a><a href="https://b.example.com">b</a>`),
				},
			}),
			want: []string{"https://a.example.com", "https://b.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractLinks(tt.msg)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractLinks() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCleanLink(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
		ok   bool
	}{
		{
			name: "plain https",
			href: "https://example.com/page",
			want: "https://example.com/page",
			ok:   true,
		},
		{
			name: "whitespace trimmed",
			href: "  https://example.com  ",
			want: "https://example.com",
			ok:   true,
		},
		{
			name: "scheme case insensitive",
			href: "HTTPS://example.com",
			want: "HTTPS://example.com",
			ok:   true,
		},
		{
			name: "empty dropped",
			href: "",
			ok:   false,
		},
		{
			name: "mailto dropped",
			href: "mailto:x@example.com",
			ok:   false,
		},
		{
			name: "javascript dropped",
			href: "javascript:alert(1)",
			ok:   false,
		},
		{
			name: "fragment dropped",
			href: "#top",
			ok:   false,
		},
		{
			name: "relative dropped",
			href: "/unsubscribe",
			ok:   false,
		},
		{
			name: "unparseable dropped",
			href: "http://bad host.example.com/",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cleanLink(tt.href)
			if ok != tt.ok {
				t.Fatalf("cleanLink(%q) ok = %v, want %v", tt.href, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("cleanLink(%q) = %q, want %q", tt.href, got, tt.want)
			}
		})
	}
}

func TestIsLikelyTracker(t *testing.T) {
	tests := []struct {
		name string
		link string
		want bool
	}{
		{
			name: "click subdomain",
			link: "https://click.mailer.example.com/abc",
			want: true,
		},
		{
			name: "track subdomain",
			link: "https://track.example.com/open",
			want: true,
		},
		{
			name: "ordinary site",
			link: "https://example.com/page",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLikelyTracker(tt.link); got != tt.want {
				t.Errorf("isLikelyTracker(%q) = %v, want %v", tt.link, got, tt.want)
			}
		})
	}
}

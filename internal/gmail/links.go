package gmail

import (
	"net/url"
	"regexp"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

var anchorHrefRegex = regexp.MustCompile(`(?is)<a\s[^>]*href\s*=\s*["']([^"']+)["']`)

// redirectParams are query parameters commonly used by click-tracking
// redirectors to carry the real destination, in lookup order.
var redirectParams = []string{"url", "u", "redirect", "destination", "target", "link"}

// ExtractLinks collects http and https links from every HTML part of a
// message, in document order, with tracking redirects unwrapped and
// duplicates removed. Messages without HTML parts yield an empty list.
func ExtractLinks(msg *gmail.Message) []string {
	if msg == nil || msg.Payload == nil {
		return nil
	}

	var links []string
	seen := make(map[string]bool)

	walkHTMLLeaves(msg.Payload, func(html string) {
		for _, match := range anchorHrefRegex.FindAllStringSubmatch(html, -1) {
			link, ok := cleanLink(match[1])
			if !ok || seen[link] {
				continue
			}
			seen[link] = true
			links = append(links, link)
		}
	})

	return links
}

// walkHTMLLeaves visits every text/html leaf in the MIME tree, children
// before siblings, and calls fn with the decoded body.
func walkHTMLLeaves(part *gmail.MessagePart, fn func(html string)) {
	if part == nil {
		return
	}

	if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
		if html := decodeBody(part.Body.Data); html != "" {
			fn(html)
		}
	}

	for _, child := range part.Parts {
		walkHTMLLeaves(child, fn)
	}
}

// cleanLink normalizes a raw href: non-web schemes, fragments and
// unparseable URLs are dropped, and tracking redirects are unwrapped to
// their destination when one of the known redirect parameters holds an
// absolute http(s) URL.
func cleanLink(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") {
		return "", false
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", false
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	query := parsed.Query()
	for _, param := range redirectParams {
		candidate := query.Get(param)
		if candidate == "" {
			continue
		}
		candidateLower := strings.ToLower(candidate)
		if strings.HasPrefix(candidateLower, "http://") || strings.HasPrefix(candidateLower, "https://") {
			return candidate, true
		}
	}

	return href, true
}

// isLikelyTracker reports whether a link looks like a click tracker that
// survived unwrapping. The result is informational only; links are always
// returned regardless.
func isLikelyTracker(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	for _, fragment := range []string{"click.", "track.", "links.", "email.", "mailtrack"} {
		if strings.HasPrefix(host, fragment) || strings.Contains(host, "."+fragment) {
			return true
		}
	}
	return false
}

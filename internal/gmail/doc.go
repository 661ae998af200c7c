// Package gmail wraps the Gmail API for the operations this server exposes:
// sending raw messages, searching, fetching and label modification. It also
// contains the message pipeline around those calls: RFC 2822 composition
// (compose.go) and best-effort body and link extraction from inbound MIME
// trees (extract.go, links.go).
//
// Extraction never fails hard: malformed or unexpected MIME shapes degrade
// to an empty body or an empty link list, because partial information is
// more useful to an agent than an error on a read path.
package gmail

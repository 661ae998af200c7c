// Package logging provides slog helpers shared across the application:
// consistent attribute names, PII-safe account hashing, and an adapter that
// satisfies the mcp-go logger interface.
package logging

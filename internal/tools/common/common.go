// Package common holds helpers shared by all tool packages: account
// resolution, argument parsing and handler instrumentation.
package common

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/mailagent/internal/accounts"
	"github.com/teemow/mailagent/internal/logging"
	"github.com/teemow/mailagent/internal/server"
)

// ResolveAccount determines which account a tool call targets: an explicit
// "account" argument wins, otherwise the store default is used. Returns an
// error when neither is available.
func ResolveAccount(args map[string]interface{}, store *accounts.Store) (string, error) {
	if account, ok := args["account"].(string); ok && strings.TrimSpace(account) != "" {
		return accounts.Normalize(account), nil
	}

	if def, ok := store.Default(); ok {
		return def, nil
	}

	return "", fmt.Errorf("no account specified and no default account configured; add one with accounts_add")
}

// StringArg returns a trimmed string argument, or an empty string when it
// is absent or not a string.
func StringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// NumberArg returns a numeric argument with a fallback. JSON numbers
// arrive as float64.
func NumberArg(args map[string]interface{}, key string, fallback int64) int64 {
	if v, ok := args[key].(float64); ok && v > 0 {
		return int64(v)
	}
	return fallback
}

// BoolArg returns a boolean argument, defaulting to false.
func BoolArg(args map[string]interface{}, key string) bool {
	v, ok := args[key].(bool)
	return ok && v
}

// SplitAddresses splits a comma-separated address list into trimmed,
// non-empty entries.
func SplitAddresses(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Handler is the shape of an MCP tool handler.
type Handler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Instrumented wraps a handler with invocation logging and metrics. The
// account label is recorded anonymized, and only when the handler resolved
// one.
func Instrumented(toolName string, sc *server.ServerContext, fn func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error)) Handler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, account, err := fn(ctx, request)

		status := logging.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = logging.StatusError
		}

		accountLabel := ""
		if account != "" {
			accountLabel = logging.AnonymizeEmail(account)
		}
		sc.Metrics().RecordToolInvocation(ctx, toolName, status, accountLabel, time.Since(start))

		attrs := []any{
			logging.Tool(toolName),
			logging.Status(status),
		}
		if account != "" {
			attrs = append(attrs, logging.UserHash(account))
		}
		if err != nil {
			attrs = append(attrs, logging.Err(err))
		}
		sc.Logger().Debug("tool invocation", attrs...)

		return result, err
	}
}

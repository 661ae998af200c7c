// Package mail_tools exposes mail operations as MCP tools: sending,
// replying, searching and reading messages.
package mail_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailagent/internal/auth"
	"github.com/teemow/mailagent/internal/gmail"
	"github.com/teemow/mailagent/internal/server"
	"github.com/teemow/mailagent/internal/tools/common"
)

const defaultSearchResults = 10

// RegisterMailTools registers all mail operation tools with the MCP server.
func RegisterMailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	sendTool := mcp.NewTool("mail_send",
		mcp.WithDescription("Send a plain-text email from one of the registered accounts"),
		mcp.WithString("account",
			mcp.Description("Sending account address. Defaults to the default account."),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain-text email body"),
		),
		mcp.WithString("cc",
			mcp.Description("CC email address(es), comma-separated"),
		),
		mcp.WithString("bcc",
			mcp.Description("BCC email address(es), comma-separated"),
		),
	)
	s.AddTool(sendTool, common.Instrumented("mail_send", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
		return handleMailSend(ctx, request, sc)
	}))

	replyTool := mcp.NewTool("mail_reply",
		mcp.WithDescription("Reply to an existing message, keeping the reply in its thread"),
		mcp.WithString("account",
			mcp.Description("Replying account address. Defaults to the default account."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("ID of the message to reply to"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain-text reply body"),
		),
		mcp.WithString("cc",
			mcp.Description("CC email address(es), comma-separated"),
		),
		mcp.WithString("bcc",
			mcp.Description("BCC email address(es), comma-separated"),
		),
	)
	s.AddTool(replyTool, common.Instrumented("mail_reply", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
		return handleMailReply(ctx, request, sc)
	}))

	searchTool := mcp.NewTool("mail_search",
		mcp.WithDescription("Search messages in an account using Gmail query syntax"),
		mcp.WithString("account",
			mcp.Description("Account address to search in. Defaults to the default account."),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query (e.g. 'in:inbox is:unread', 'from:user@example.com')"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
	)
	s.AddTool(searchTool, common.Instrumented("mail_search", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
		return handleMailSearch(ctx, request, sc)
	}))

	readTool := mcp.NewTool("mail_read",
		mcp.WithDescription("Read a message: headers, extracted plain-text body and the links it contains"),
		mcp.WithString("account",
			mcp.Description("Account address the message belongs to. Defaults to the default account."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("ID of the message to read"),
		),
		mcp.WithBoolean("markRead",
			mcp.Description("Also mark the message as read (default: false)"),
		),
	)
	s.AddTool(readTool, common.Instrumented("mail_read", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
		return handleMailRead(ctx, request, sc)
	}))

	markReadTool := mcp.NewTool("mail_mark_read",
		mcp.WithDescription("Mark a message as read"),
		mcp.WithString("account",
			mcp.Description("Account address the message belongs to. Defaults to the default account."),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("ID of the message to mark as read"),
		),
	)
	s.AddTool(markReadTool, common.Instrumented("mail_mark_read", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
		return handleMailMarkRead(ctx, request, sc)
	}))

	return nil
}

// clientForAccount resolves the target account and returns a mail client
// for it, translating auth failures into agent-actionable messages.
func clientForAccount(ctx context.Context, args map[string]interface{}, sc *server.ServerContext) (*gmail.Client, string, *mcp.CallToolResult) {
	account, err := common.ResolveAccount(args, sc.Accounts())
	if err != nil {
		return nil, "", mcp.NewToolResultError(err.Error())
	}

	client, err := sc.MailClientForAccount(ctx, account)
	if err != nil {
		return nil, account, authErrorResult(account, err)
	}

	return client, account, nil
}

func authErrorResult(account string, err error) *mcp.CallToolResult {
	if errors.Is(err, auth.ErrReauthRequired) {
		return mcp.NewToolResultError(fmt.Sprintf("account %s requires re-authorization: its refresh token was rejected. Remove the account and add it again with fresh credentials.", account))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to access account %s: %v", account, err))
}

func handleMailSend(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error) {
	args := request.GetArguments()

	to := common.SplitAddresses(common.StringArg(args, "to"))
	if len(to) == 0 {
		return mcp.NewToolResultError("'to' field is required"), "", nil
	}

	subject := common.StringArg(args, "subject")
	if subject == "" {
		return mcp.NewToolResultError("'subject' field is required"), "", nil
	}

	body, _ := args["body"].(string)
	if body == "" {
		return mcp.NewToolResultError("'body' field is required"), "", nil
	}

	client, account, errResult := clientForAccount(ctx, args, sc)
	if errResult != nil {
		return errResult, account, nil
	}

	raw, err := gmail.BuildRaw(gmail.ComposeMessage{
		To:      to,
		Cc:      common.SplitAddresses(common.StringArg(args, "cc")),
		Bcc:     common.SplitAddresses(common.StringArg(args, "bcc")),
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build message: %v", err)), account, nil
	}

	id, err := client.SendRaw(ctx, raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to send message: %v", err)), account, nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Message sent from %s (id: %s).", account, id)), account, nil
}

func handleMailReply(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error) {
	args := request.GetArguments()

	messageID := common.StringArg(args, "messageId")
	if messageID == "" {
		return mcp.NewToolResultError("'messageId' field is required"), "", nil
	}

	body, _ := args["body"].(string)
	if body == "" {
		return mcp.NewToolResultError("'body' field is required"), "", nil
	}

	client, account, errResult := clientForAccount(ctx, args, sc)
	if errResult != nil {
		return errResult, account, nil
	}

	// The original headers are always fetched fresh so threading never
	// relies on stale caller-supplied state.
	orig, err := client.GetMessageMetadata(ctx, messageID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch original message: %v", err)), account, nil
	}

	raw, err := gmail.BuildReplyRaw(
		gmail.ReplyContextFromMessage(orig),
		body,
		common.SplitAddresses(common.StringArg(args, "cc")),
		common.SplitAddresses(common.StringArg(args, "bcc")),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot reply to message %s: %v", messageID, err)), account, nil
	}

	id, err := client.SendRawInThread(ctx, raw, orig.ThreadId)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to send reply: %v", err)), account, nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Reply sent from %s (id: %s, thread: %s).", account, id, orig.ThreadId)), account, nil
}

func handleMailSearch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error) {
	args := request.GetArguments()

	query := common.StringArg(args, "query")
	if query == "" {
		return mcp.NewToolResultError("'query' field is required"), "", nil
	}

	maxResults := common.NumberArg(args, "maxResults", defaultSearchResults)

	client, account, errResult := clientForAccount(ctx, args, sc)
	if errResult != nil {
		return errResult, account, nil
	}

	summaries, err := client.ListMessages(ctx, query, maxResults)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), account, nil
	}

	if len(summaries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No messages in %s match query: %s", account, query)), account, nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Found %d message(s) in %s:\n\n", len(summaries), account))
	for i, s := range summaries {
		b.WriteString(fmt.Sprintf("%d. ID: %s (thread: %s)\n", i+1, s.ID, s.ThreadID))
		if s.Snippet != "" {
			b.WriteString(fmt.Sprintf("   %s\n", s.Snippet))
		}
	}

	return mcp.NewToolResultText(b.String()), account, nil
}

func handleMailRead(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error) {
	args := request.GetArguments()

	messageID := common.StringArg(args, "messageId")
	if messageID == "" {
		return mcp.NewToolResultError("'messageId' field is required"), "", nil
	}

	client, account, errResult := clientForAccount(ctx, args, sc)
	if errResult != nil {
		return errResult, account, nil
	}

	msg, err := client.GetMessage(ctx, messageID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read message: %v", err)), account, nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Message %s\n", messageID))
	b.WriteString(gmail.Summary(msg))

	b.WriteString("\n")
	text := gmail.ExtractPlainText(msg)
	if text == "" {
		b.WriteString("(no readable body)\n")
	} else {
		b.WriteString(text)
		b.WriteString("\n")
	}

	if links := gmail.ExtractLinks(msg); len(links) > 0 {
		b.WriteString("\nLinks:\n")
		for _, link := range links {
			b.WriteString("- " + link + "\n")
		}
	}

	if common.BoolArg(args, "markRead") {
		if err := client.MarkRead(ctx, messageID); err != nil {
			b.WriteString(fmt.Sprintf("\nWarning: failed to mark message as read: %v\n", err))
		} else {
			b.WriteString("\nMessage marked as read.\n")
		}
	}

	return mcp.NewToolResultText(b.String()), account, nil
}

func handleMailMarkRead(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error) {
	args := request.GetArguments()

	messageID := common.StringArg(args, "messageId")
	if messageID == "" {
		return mcp.NewToolResultError("'messageId' field is required"), "", nil
	}

	client, account, errResult := clientForAccount(ctx, args, sc)
	if errResult != nil {
		return errResult, account, nil
	}

	if err := client.MarkRead(ctx, messageID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to mark message as read: %v", err)), account, nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Message %s marked as read.", messageID)), account, nil
}

// Package account_tools exposes the account lifecycle as MCP tools:
// adding, removing and listing mail accounts and choosing the default.
package account_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"

	"github.com/teemow/mailagent/internal/accounts"
	"github.com/teemow/mailagent/internal/server"
	"github.com/teemow/mailagent/internal/tools/common"
)

// RegisterAccountTools registers all account management tools with the MCP
// server.
func RegisterAccountTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	addTool := mcp.NewTool("accounts_add",
		mcp.WithDescription("Register a mail account with its OAuth2 credentials. Use accounts_set_default to make it the default."),
		mcp.WithString("address",
			mcp.Required(),
			mcp.Description("Email address of the account"),
		),
		mcp.WithString("accessToken",
			mcp.Required(),
			mcp.Description("OAuth2 access token for the account"),
		),
		mcp.WithString("refreshToken",
			mcp.Required(),
			mcp.Description("OAuth2 refresh token for the account"),
		),
		mcp.WithString("expiry",
			mcp.Description("Access token expiry in RFC 3339 format (e.g. 2026-08-29T12:00:00Z). Omit if unknown."),
		),
		mcp.WithString("scopes",
			mcp.Description("Granted OAuth2 scopes, comma-separated"),
		),
	)
	s.AddTool(addTool, common.Instrumented("accounts_add", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
		return handleAccountsAdd(ctx, request, sc)
	}))

	removeTool := mcp.NewTool("accounts_remove",
		mcp.WithDescription("Remove a registered mail account and its stored credentials"),
		mcp.WithString("address",
			mcp.Required(),
			mcp.Description("Email address of the account to remove"),
		),
	)
	s.AddTool(removeTool, common.Instrumented("accounts_remove", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
		return handleAccountsRemove(ctx, request, sc)
	}))

	setDefaultTool := mcp.NewTool("accounts_set_default",
		mcp.WithDescription("Set the default account used when a tool call does not name one"),
		mcp.WithString("address",
			mcp.Required(),
			mcp.Description("Email address of the account to make the default"),
		),
	)
	s.AddTool(setDefaultTool, common.Instrumented("accounts_set_default", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
		return handleAccountsSetDefault(ctx, request, sc)
	}))

	listTool := mcp.NewTool("accounts_list",
		mcp.WithDescription("List registered mail accounts"),
	)
	s.AddTool(listTool, common.Instrumented("accounts_list", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
		return handleAccountsList(ctx, request, sc)
	}))

	return nil
}

func handleAccountsAdd(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error) {
	args := request.GetArguments()

	address := common.StringArg(args, "address")
	if address == "" {
		return mcp.NewToolResultError("'address' field is required"), "", nil
	}
	if !strings.Contains(address, "@") {
		return mcp.NewToolResultError(fmt.Sprintf("'%s' is not a valid email address", address)), "", nil
	}

	accessToken := common.StringArg(args, "accessToken")
	if accessToken == "" {
		return mcp.NewToolResultError("'accessToken' field is required"), "", nil
	}

	refreshToken := common.StringArg(args, "refreshToken")
	if refreshToken == "" {
		return mcp.NewToolResultError("'refreshToken' field is required"), "", nil
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	if expiryStr := common.StringArg(args, "expiry"); expiryStr != "" {
		expiry, err := time.Parse(time.RFC3339, expiryStr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid expiry: %v (expected RFC 3339, e.g. 2026-08-29T12:00:00Z)", err)), "", nil
		}
		token.Expiry = expiry
	}

	scopes := common.SplitAddresses(common.StringArg(args, "scopes"))

	address = accounts.Normalize(address)
	if err := sc.Accounts().Add(address, token, scopes); err != nil {
		if errors.Is(err, accounts.ErrAccountExists) {
			return mcp.NewToolResultError(fmt.Sprintf("account %s is already registered; remove it first to replace its credentials", address)), address, nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to add account: %v", err)), address, nil
	}

	msg := fmt.Sprintf("Account %s added successfully.", address)
	if _, ok := sc.Accounts().Default(); !ok {
		msg += " No default account is set; set one with accounts_set_default."
	}
	return mcp.NewToolResultText(msg), address, nil
}

func handleAccountsRemove(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error) {
	args := request.GetArguments()

	address := common.StringArg(args, "address")
	if address == "" {
		return mcp.NewToolResultError("'address' field is required"), "", nil
	}
	address = accounts.Normalize(address)

	if err := sc.Accounts().Remove(address); err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("account %s is not registered", address)), address, nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to remove account: %v", err)), address, nil
	}

	sc.DropClient(address)

	msg := fmt.Sprintf("Account %s removed.", address)
	if _, ok := sc.Accounts().Default(); !ok {
		msg += " No default account remains; set one with accounts_set_default."
	}
	return mcp.NewToolResultText(msg), address, nil
}

func handleAccountsSetDefault(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error) {
	args := request.GetArguments()

	address := common.StringArg(args, "address")
	if address == "" {
		return mcp.NewToolResultError("'address' field is required"), "", nil
	}
	address = accounts.Normalize(address)

	if err := sc.Accounts().SetDefault(address); err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("account %s is not registered", address)), address, nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to set default account: %v", err)), address, nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Default account set to %s.", address)), address, nil
}

func handleAccountsList(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error) {
	records := sc.Accounts().List()
	if len(records) == 0 {
		return mcp.NewToolResultText("No accounts registered. Add one with accounts_add."), "", nil
	}

	def, _ := sc.Accounts().Default()

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered accounts (%d):\n", len(records)))
	for _, rec := range records {
		marker := " "
		if rec.Address == def {
			marker = "*"
		}
		b.WriteString(fmt.Sprintf("%s %s (added %s", marker, rec.Address, rec.AddedAt.Format("2006-01-02")))
		if !rec.LastUsed.IsZero() {
			b.WriteString(fmt.Sprintf(", last used %s", rec.LastUsed.Format("2006-01-02 15:04")))
		}
		b.WriteString(")\n")
	}
	if def != "" {
		b.WriteString("\n* = default account")
	}

	return mcp.NewToolResultText(b.String()), "", nil
}

package mail_tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/oauth2"

	"github.com/teemow/mailagent/internal/accounts"
	"github.com/teemow/mailagent/internal/auth"
	"github.com/teemow/mailagent/internal/server"
)

func newTestContext(t *testing.T) *server.ServerContext {
	t.Helper()

	store, err := accounts.Open(filepath.Join(t.TempDir(), "accounts.json"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	authManager := auth.NewManager(store, &oauth2.Config{}, nil, nil)
	sc := server.NewServerContext(context.Background(), store, authManager, nil, nil)
	t.Cleanup(sc.Shutdown)
	return sc
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	if result == nil || len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("tool result content is %T, want text", result.Content[0])
	}
	return text.Text
}

type handlerFunc func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, string, error)

func TestHandlersRejectMissingArguments(t *testing.T) {
	sc := newTestContext(t)

	tests := []struct {
		name        string
		handler     handlerFunc
		args        map[string]interface{}
		wantMessage string
	}{
		{
			name:        "send without to",
			handler:     handleMailSend,
			args:        map[string]interface{}{"subject": "s", "body": "b"},
			wantMessage: "'to' field is required",
		},
		{
			name:        "send without subject",
			handler:     handleMailSend,
			args:        map[string]interface{}{"to": "a@example.com", "body": "b"},
			wantMessage: "'subject' field is required",
		},
		{
			name:        "send without body",
			handler:     handleMailSend,
			args:        map[string]interface{}{"to": "a@example.com", "subject": "s"},
			wantMessage: "'body' field is required",
		},
		{
			name:        "reply without messageId",
			handler:     handleMailReply,
			args:        map[string]interface{}{"body": "b"},
			wantMessage: "'messageId' field is required",
		},
		{
			name:        "reply without body",
			handler:     handleMailReply,
			args:        map[string]interface{}{"messageId": "m1"},
			wantMessage: "'body' field is required",
		},
		{
			name:        "search without query",
			handler:     handleMailSearch,
			args:        map[string]interface{}{},
			wantMessage: "'query' field is required",
		},
		{
			name:        "read without messageId",
			handler:     handleMailRead,
			args:        map[string]interface{}{},
			wantMessage: "'messageId' field is required",
		},
		{
			name:        "mark read without messageId",
			handler:     handleMailMarkRead,
			args:        map[string]interface{}{},
			wantMessage: "'messageId' field is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := tt.handler(context.Background(), callRequest(tt.args), sc)
			if err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if !result.IsError {
				t.Fatal("handler succeeded, want validation error")
			}
			if got := resultText(t, result); !strings.Contains(got, tt.wantMessage) {
				t.Errorf("error message = %q, want it to contain %q", got, tt.wantMessage)
			}
		})
	}
}

func TestHandlersRequireAnAccount(t *testing.T) {
	sc := newTestContext(t)

	result, _, err := handleMailSearch(context.Background(), callRequest(map[string]interface{}{
		"query": "in:inbox",
	}), sc)
	if err != nil {
		t.Fatalf("handleMailSearch() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("search without any account succeeded, want error")
	}
	if got := resultText(t, result); !strings.Contains(got, "accounts_add") {
		t.Errorf("error message = %q, want a pointer at accounts_add", got)
	}
}

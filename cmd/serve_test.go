package cmd

import (
	"context"
	"path/filepath"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"

	"github.com/teemow/mailagent/internal/accounts"
	"github.com/teemow/mailagent/internal/auth"
	"github.com/teemow/mailagent/internal/server"
)

func TestNewServeCmdFlags(t *testing.T) {
	cmd := newServeCmd()

	flags := []string{
		"debug",
		"transport",
		"http-addr",
		"state-dir",
		"google-client-id",
		"google-client-secret",
		"metrics-enabled",
		"metrics-addr",
	}

	for _, name := range flags {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("serve command missing flag --%s", name)
		}
	}

	if got := cmd.Flags().Lookup("transport").DefValue; got != "stdio" {
		t.Errorf("default transport = %v, want stdio", got)
	}
}

func TestRegisterAllTools(t *testing.T) {
	store, err := accounts.Open(filepath.Join(t.TempDir(), "accounts.json"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	authManager := auth.NewManager(store, &oauth2.Config{}, nil, nil)
	sc := server.NewServerContext(context.Background(), store, authManager, newLogger(serveConfig{}), nil)
	defer sc.Shutdown()

	mcpSrv := mcpserver.NewMCPServer("mailagent-test", "test",
		mcpserver.WithToolCapabilities(true),
	)

	if err := registerAllTools(mcpSrv, sc); err != nil {
		t.Fatalf("registerAllTools() error = %v", err)
	}
}

func TestRunServeRejectsUnknownTransport(t *testing.T) {
	cfg := serveConfig{
		Transport: "carrier-pigeon",
		StateDir:  t.TempDir(),
	}

	err := runServe(cfg)
	if err == nil {
		t.Fatal("runServe() with unknown transport succeeded, want error")
	}
}

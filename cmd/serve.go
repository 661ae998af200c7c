package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/mailagent/internal/accounts"
	"github.com/teemow/mailagent/internal/auth"
	"github.com/teemow/mailagent/internal/instrumentation"
	"github.com/teemow/mailagent/internal/logging"
	"github.com/teemow/mailagent/internal/server"
	"github.com/teemow/mailagent/internal/tools/account_tools"
	"github.com/teemow/mailagent/internal/tools/mail_tools"
)

// serveConfig holds the settings for a server run.
type serveConfig struct {
	Debug     bool
	Transport string
	HTTPAddr  string
	StateDir  string

	GoogleClientID     string
	GoogleClientSecret string

	MetricsEnabled bool
	MetricsAddr    string
}

func newServeCmd() *cobra.Command {
	var cfg serveConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing mail tools
for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

OAuth Configuration:
  Token refresh requires OAuth client credentials:
    --google-client-id and --google-client-secret flags
    OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars
  Without these, tool calls fail once stored access tokens expire.

State:
  Registered accounts and their credentials are persisted under the
  state directory (default: ~/.config/mailagent).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.Transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", ":8080", "Address for the streamable-http transport")
	cmd.Flags().StringVar(&cfg.StateDir, "state-dir", "", "Directory for persisted account state (default: ~/.config/mailagent)")
	cmd.Flags().StringVar(&cfg.GoogleClientID, "google-client-id", "", "Google OAuth client ID for token refresh (or GOOGLE_CLIENT_ID env var)")
	cmd.Flags().StringVar(&cfg.GoogleClientSecret, "google-client-secret", "", "Google OAuth client secret for token refresh (or GOOGLE_CLIENT_SECRET env var)")
	cmd.Flags().BoolVar(&cfg.MetricsEnabled, "metrics-enabled", false, "Serve Prometheus metrics (non-stdio transports only)")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", ":9090", "Address for the metrics server")

	return cmd
}

func runServe(cfg serveConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Get Google OAuth credentials from environment if not provided via flags
	if cfg.GoogleClientID == "" {
		cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if cfg.GoogleClientSecret == "" {
		cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}

	if cfg.StateDir == "" {
		cfg.StateDir = os.Getenv("MAILAGENT_STATE_DIR")
	}
	if cfg.StateDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to determine config directory: %w", err)
		}
		cfg.StateDir = filepath.Join(configDir, "mailagent")
	}

	logger := newLogger(cfg)
	logger.Info("starting mailagent",
		slog.String("version", version),
		slog.String("transport", cfg.Transport),
	)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.DetailedLabels = cfg.Debug

	provider, err := instrumentation.NewProvider(instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil && cfg.Transport != "stdio" {
			log.Printf("Error during instrumentation shutdown: %v", err)
		}
	}()

	// Start metrics server if enabled and not in stdio mode
	if cfg.Transport != "stdio" && cfg.MetricsEnabled {
		if err := startMetricsServer(shutdownCtx, cfg.MetricsAddr, provider, logger); err != nil {
			return err
		}
	}

	store, err := accounts.Open(filepath.Join(cfg.StateDir, "accounts.json"), logger)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}
	logger.Info("account store ready", slog.Any("stats", store.Stats()))

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.MailGoogleComScope},
	}
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		logger.Warn("no OAuth client credentials configured; token refresh will fail when access tokens expire")
	}

	authManager := auth.NewManager(store, oauthConfig, logger, provider.Metrics())
	serverContext := server.NewServerContext(shutdownCtx, store, authManager, logger, provider.Metrics())
	defer serverContext.Shutdown()

	mcpSrv := mcpserver.NewMCPServer(
		"mailagent",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	switch cfg.Transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		logger.Info("starting streamable-http transport", slog.String("addr", cfg.HTTPAddr))
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, cfg.HTTPAddr, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", cfg.Transport)
	}
}

// newLogger builds the server logger. In stdio mode logs go to stderr so
// they never corrupt the protocol stream on stdout.
func newLogger(cfg serveConfig) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func startMetricsServer(ctx context.Context, addr string, provider *instrumentation.Provider, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(provider.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}()

	// Give an immediate bind failure a chance to surface.
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	logger.Info("metrics server started", slog.String("addr", addr))
	return nil
}

// registerAllTools registers all MCP tools with the server.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := account_tools.RegisterAccountTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register account tools: %w", err)
	}
	if err := mail_tools.RegisterMailTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register mail tools: %w", err)
	}
	return nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, addr string, logger *slog.Logger) error {
	httpServer := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithLogger(logging.NewSlogAdapter(logger)),
	)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

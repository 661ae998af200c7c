// Package server holds the shared state behind all MCP tool handlers:
// the account store, the auth manager, and a cache of per-account mail
// clients.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/mailagent/internal/accounts"
	"github.com/teemow/mailagent/internal/auth"
	"github.com/teemow/mailagent/internal/gmail"
	"github.com/teemow/mailagent/internal/instrumentation"
	"github.com/teemow/mailagent/internal/logging"
)

// ServerContext carries the dependencies tool handlers need. It is created
// once at startup and shared across all requests.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	store   *accounts.Store
	auth    *auth.Manager
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	mu      sync.RWMutex
	clients map[string]*gmail.Client

	shutdownOnce sync.Once
}

// NewServerContext creates the shared server state. metrics may be nil when
// instrumentation is disabled.
func NewServerContext(ctx context.Context, store *accounts.Store, authManager *auth.Manager, logger *slog.Logger, metrics *instrumentation.Metrics) *ServerContext {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:     ctx,
		cancel:  cancel,
		store:   store,
		auth:    authManager,
		logger:  logger,
		metrics: metrics,
		clients: make(map[string]*gmail.Client),
	}
}

// Accounts returns the account store.
func (sc *ServerContext) Accounts() *accounts.Store {
	return sc.store
}

// Auth returns the credential manager.
func (sc *ServerContext) Auth() *auth.Manager {
	return sc.auth
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metric recorders, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// MailClientForAccount returns a mail client for the given account,
// creating and caching one on first use. Cached clients stay valid across
// token refreshes because their transport pulls tokens through the auth
// manager on every request.
func (sc *ServerContext) MailClientForAccount(ctx context.Context, address string) (*gmail.Client, error) {
	address = accounts.Normalize(address)

	sc.mu.RLock()
	client, ok := sc.clients[address]
	sc.mu.RUnlock()
	if ok {
		return client, nil
	}

	httpClient, err := sc.auth.HTTPClient(ctx, address)
	if err != nil {
		return nil, err
	}

	client, err = gmail.NewClient(sc.ctx, address, httpClient, sc.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if existing, ok := sc.clients[address]; ok {
		return existing, nil
	}
	sc.clients[address] = client

	sc.logger.Debug("created mail client",
		logging.UserHash(address),
	)

	return client, nil
}

// DropClient removes a cached client, forcing the next call for the account
// to build a fresh one. Called when an account is removed.
func (sc *ServerContext) DropClient(address string) {
	address = accounts.Normalize(address)

	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.clients, address)
}

// Shutdown cancels the server context. Safe to call more than once.
func (sc *ServerContext) Shutdown() {
	sc.shutdownOnce.Do(func() {
		sc.cancel()
		sc.logger.Debug("server context shut down")
	})
}

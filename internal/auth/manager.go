package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/mailagent/internal/accounts"
	"github.com/teemow/mailagent/internal/instrumentation"
	"github.com/teemow/mailagent/internal/logging"
)

// ErrReauthRequired is returned when the provider rejects the refresh token
// itself (revoked or invalid consent). It is never retried; the account must
// be removed and added again to obtain fresh consent.
var ErrReauthRequired = errors.New("refresh token rejected, account must be re-authorized")

// refreshMargin is how close to expiry a token may get before it is
// refreshed proactively.
const refreshMargin = 5 * time.Minute

// Manager hands out currently-valid tokens for stored accounts.
type Manager struct {
	store   *accounts.Store
	config  *oauth2.Config
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	group   singleflight.Group
}

// NewManager creates a Manager backed by the given store. config carries the
// OAuth client credentials and token endpoint used for refreshes. metrics
// may be nil.
func NewManager(store *accounts.Store, config *oauth2.Config, logger *slog.Logger, metrics *instrumentation.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve returns a currently-valid token for address, refreshing and
// persisting it first if its expiry is within the safety margin. The
// returned token is the caller's copy; mutating it does not affect the
// store.
func (m *Manager) Resolve(ctx context.Context, address string) (*oauth2.Token, error) {
	addr := accounts.Normalize(address)

	rec, err := m.store.Get(addr)
	if err != nil {
		return nil, err
	}

	if !tokenExpired(rec.Credential, refreshMargin) {
		m.store.Touch(addr)
		return rec.Credential, nil
	}

	// Coalesce concurrent refreshes per address: the losers of the race
	// receive the winner's rotated token instead of racing to persist a
	// stale one. Distinct addresses use distinct singleflight keys and
	// never contend.
	v, err, _ := m.group.Do(addr, func() (interface{}, error) {
		return m.refresh(ctx, addr)
	})
	if err != nil {
		return nil, err
	}

	m.store.Touch(addr)
	return v.(*oauth2.Token), nil
}

// refresh rotates the credential for addr and persists it. It re-reads the
// record first because a previous singleflight winner may already have
// rotated it between the caller's expiry check and this call.
func (m *Manager) refresh(ctx context.Context, addr string) (*oauth2.Token, error) {
	rec, err := m.store.Get(addr)
	if err != nil {
		return nil, err
	}
	if !tokenExpired(rec.Credential, refreshMargin) {
		return rec.Credential, nil
	}

	if rec.Credential.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored for %s", ErrReauthRequired, addr)
	}

	// The rotated credential must land in the store even if the caller
	// goes away mid-refresh: cancellation cancels the response, not the
	// store mutation.
	ctx = context.WithoutCancel(ctx)

	ts := m.config.TokenSource(ctx, rec.Credential)
	newToken, err := ts.Token()
	if err != nil {
		if isReauthError(err) {
			m.recordRefresh(ctx, "reauth_required")
			m.logger.Warn("Refresh token rejected", logging.UserHash(addr))
			return nil, fmt.Errorf("%w: %s", ErrReauthRequired, addr)
		}
		m.recordRefresh(ctx, "failure")
		return nil, fmt.Errorf("failed to refresh token for %s: %w", addr, err)
	}

	// Providers do not always echo the refresh token back; carry the old
	// one forward so the record never loses its ability to refresh.
	if newToken.RefreshToken == "" {
		newToken.RefreshToken = rec.Credential.RefreshToken
	}

	if err := m.store.UpdateCredential(addr, newToken); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential for %s: %w", addr, err)
	}

	m.recordRefresh(ctx, "success")
	m.logger.Info("Refreshed credential", logging.UserHash(addr), "expiry", newToken.Expiry)
	return newToken, nil
}

// TokenSource returns an oauth2.TokenSource whose Token method resolves
// through the manager, so HTTP clients built on it always carry a live
// token and share the per-address refresh serialization.
func (m *Manager) TokenSource(ctx context.Context, address string) oauth2.TokenSource {
	return &managerTokenSource{mgr: m, ctx: ctx, address: accounts.Normalize(address)}
}

// HTTPClient returns an HTTP client that authenticates every request with a
// resolved token for address. Each address gets its own client; token state
// is never shared across addresses.
func (m *Manager) HTTPClient(ctx context.Context, address string) (*http.Client, error) {
	// Fail fast if the account is unknown or beyond recovery.
	if _, err := m.Resolve(ctx, address); err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, m.TokenSource(ctx, address)), nil
}

type managerTokenSource struct {
	mgr     *Manager
	ctx     context.Context
	address string
}

func (ts *managerTokenSource) Token() (*oauth2.Token, error) {
	return ts.mgr.Resolve(ts.ctx, ts.address)
}

func (m *Manager) recordRefresh(ctx context.Context, result string) {
	if m.metrics != nil {
		m.metrics.RecordTokenRefresh(ctx, result)
	}
}

// tokenExpired reports whether the token has expired or will expire within
// the margin. A zero expiry means the token does not expire.
func tokenExpired(token *oauth2.Token, margin time.Duration) bool {
	if token == nil || token.AccessToken == "" {
		return true
	}
	if token.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(token.Expiry)
}

// isReauthError distinguishes a rejected refresh token from a transient
// transport failure. The provider signals revocation with invalid_grant or
// an authorization-level status code.
func isReauthError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return true
		}
		if retrieveErr.Response != nil {
			code := retrieveErr.Response.StatusCode
			if code == http.StatusBadRequest || code == http.StatusUnauthorized {
				return strings.Contains(string(retrieveErr.Body), "invalid_grant")
			}
		}
	}
	return false
}

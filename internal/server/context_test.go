package server

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/oauth2"

	"github.com/teemow/mailagent/internal/accounts"
	"github.com/teemow/mailagent/internal/auth"
)

func newTestContext(t *testing.T) *ServerContext {
	t.Helper()

	store, err := accounts.Open(filepath.Join(t.TempDir(), "accounts.json"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	authManager := auth.NewManager(store, &oauth2.Config{}, nil, nil)
	return NewServerContext(context.Background(), store, authManager, nil, nil)
}

func TestMailClientForUnknownAccount(t *testing.T) {
	sc := newTestContext(t)
	defer sc.Shutdown()

	_, err := sc.MailClientForAccount(context.Background(), "nobody@example.com")
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Errorf("MailClientForAccount() error = %v, want ErrAccountNotFound", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	sc := newTestContext(t)

	sc.Shutdown()
	sc.Shutdown()

	select {
	case <-sc.ctx.Done():
	default:
		t.Error("server context not cancelled after Shutdown")
	}
}

func TestDropClientUnknownAccount(t *testing.T) {
	sc := newTestContext(t)
	defer sc.Shutdown()

	// Dropping a client that was never created must be a no-op.
	sc.DropClient("nobody@example.com")
}

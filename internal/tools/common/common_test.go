package common

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/mailagent/internal/accounts"
)

func newTestStore(t *testing.T) *accounts.Store {
	t.Helper()

	store, err := accounts.Open(filepath.Join(t.TempDir(), "accounts.json"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return store
}

func addAccount(t *testing.T, store *accounts.Store, address string) {
	t.Helper()

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
	if err := store.Add(address, token, nil); err != nil {
		t.Fatalf("Add(%s) error = %v", address, err)
	}
}

func TestResolveAccount(t *testing.T) {
	store := newTestStore(t)
	addAccount(t, store, "default@example.com")
	addAccount(t, store, "other@example.com")
	if err := store.SetDefault("default@example.com"); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}

	tests := []struct {
		name    string
		args    map[string]interface{}
		want    string
		wantErr bool
	}{
		{
			name: "explicit account wins over default",
			args: map[string]interface{}{"account": "Other@Example.com"},
			want: "other@example.com",
		},
		{
			name: "falls back to default",
			args: map[string]interface{}{},
			want: "default@example.com",
		},
		{
			name: "blank explicit account falls back to default",
			args: map[string]interface{}{"account": "  "},
			want: "default@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAccount(tt.args, store)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveAccount() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveAccount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveAccountNoDefault(t *testing.T) {
	store := newTestStore(t)

	_, err := ResolveAccount(map[string]interface{}{}, store)
	if err == nil {
		t.Fatal("ResolveAccount() with empty store succeeded, want error")
	}
	if !strings.Contains(err.Error(), "accounts_add") {
		t.Errorf("ResolveAccount() error %q should point at accounts_add", err)
	}
}

func TestSplitAddresses(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:  "single address",
			input: "a@example.com",
			want:  []string{"a@example.com"},
		},
		{
			name:  "multiple with whitespace",
			input: " a@example.com ,b@example.com,  c@example.com",
			want:  []string{"a@example.com", "b@example.com", "c@example.com"},
		},
		{
			name:  "empty entries dropped",
			input: "a@example.com,,b@example.com,",
			want:  []string{"a@example.com", "b@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitAddresses(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitAddresses(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNumberArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want int64
	}{
		{
			name: "present",
			args: map[string]interface{}{"maxResults": float64(25)},
			want: 25,
		},
		{
			name: "absent uses fallback",
			args: map[string]interface{}{},
			want: 10,
		},
		{
			name: "non-positive uses fallback",
			args: map[string]interface{}{"maxResults": float64(0)},
			want: 10,
		},
		{
			name: "wrong type uses fallback",
			args: map[string]interface{}{"maxResults": "25"},
			want: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NumberArg(tt.args, "maxResults", 10); got != tt.want {
				t.Errorf("NumberArg() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoolArg(t *testing.T) {
	args := map[string]interface{}{"markRead": true, "other": "true"}

	if !BoolArg(args, "markRead") {
		t.Error("BoolArg() = false for true value")
	}
	if BoolArg(args, "other") {
		t.Error("BoolArg() = true for string value")
	}
	if BoolArg(args, "missing") {
		t.Error("BoolArg() = true for missing key")
	}
}

package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/mailagent/internal/logging"
)

var (
	// ErrAccountExists is returned when adding an address that already has a record.
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountNotFound is returned when an address has no record.
	ErrAccountNotFound = errors.New("account not found")
)

// Record holds everything the server keeps for one mailbox identity.
type Record struct {
	Address    string        `json:"address"`
	Credential *oauth2.Token `json:"credential"`
	Scopes     []string      `json:"scopes,omitempty"`
	AddedAt    time.Time     `json:"addedAt"`
	LastUsed   time.Time     `json:"lastUsed"`
}

// stateFile is the on-disk layout: all records plus the default pointer in
// one JSON document, replaced atomically on every mutation.
type stateFile struct {
	DefaultAccount string    `json:"defaultAccount,omitempty"`
	Accounts       []*Record `json:"accounts"`
}

// Store is the sole owner of account state. All mutation goes through its
// methods; no other component retains a copy of a credential across calls.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]*Record
	order   []string // normalized addresses in insertion order
	def     string
	logger  *slog.Logger
}

// Open loads the store from path, creating an empty store if the file does
// not exist yet.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:    path,
		records: make(map[string]*Record),
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read account state %s: %w", path, err)
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse account state %s: %w", path, err)
	}

	for _, rec := range state.Accounts {
		addr := Normalize(rec.Address)
		if _, ok := s.records[addr]; ok {
			// Two records for one normalized address would violate the
			// uniqueness invariant; keep the first.
			logger.Warn("Dropping duplicate account record", logging.UserHash(addr))
			continue
		}
		rec.Address = addr
		s.records[addr] = rec
		s.order = append(s.order, addr)
	}

	// The default pointer must reference an existing record.
	def := Normalize(state.DefaultAccount)
	if _, ok := s.records[def]; ok {
		s.def = def
	}

	logger.Debug("Loaded account state", "accounts", len(s.records))
	return s, nil
}

// Normalize canonicalizes a mailbox address for use as a store key.
// Comparison is case-insensitive.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Exists reports whether a record exists for the normalized address.
func (s *Store) Exists(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[Normalize(address)]
	return ok
}

// Add creates a record for address with the given credential. The credential
// is the output of the external consent flow; obtaining it is the caller's
// business. The default pointer is left untouched.
func (s *Store) Add(address string, credential *oauth2.Token, scopes []string) error {
	if credential == nil {
		return fmt.Errorf("credential cannot be nil")
	}

	addr := Normalize(address)
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, addr)
	}

	now := time.Now()
	s.records[addr] = &Record{
		Address:    addr,
		Credential: credential,
		Scopes:     scopes,
		AddedAt:    now,
		LastUsed:   now,
	}
	s.order = append(s.order, addr)

	if err := s.persistLocked(); err != nil {
		// Roll back so the in-memory view never diverges from disk.
		delete(s.records, addr)
		s.order = s.order[:len(s.order)-1]
		return err
	}

	s.logger.Info("Added account", logging.UserHash(addr))
	return nil
}

// Remove deletes the record for address. If the removed account was the
// default, the default pointer is cleared.
func (s *Store) Remove(address string) error {
	addr := Normalize(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}

	delete(s.records, addr)
	for i, a := range s.order {
		if a == addr {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	prevDef := s.def
	if s.def == addr {
		s.def = ""
	}

	if err := s.persistLocked(); err != nil {
		s.records[addr] = rec
		s.order = append(s.order, addr)
		s.def = prevDef
		return err
	}

	s.logger.Info("Removed account", logging.UserHash(addr))
	return nil
}

// SetDefault points the default account at address.
func (s *Store) SetDefault(address string) error {
	addr := Normalize(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}

	prev := s.def
	s.def = addr
	if err := s.persistLocked(); err != nil {
		s.def = prev
		return err
	}

	s.logger.Info("Set default account", logging.UserHash(addr))
	return nil
}

// Default returns the default account address, if one is set.
func (s *Store) Default() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def, s.def != ""
}

// Get returns a copy of the record for address. The credential in the copy
// is itself a copy, so callers can never mutate stored state through it.
func (s *Store) Get(address string) (*Record, error) {
	addr := Normalize(address)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return copyRecord(rec), nil
}

// List returns all records in insertion order. The order is stable within a
// process run.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, copyRecord(s.records[addr]))
	}
	return out
}

// UpdateCredential overwrites the credential of an existing record. Nothing
// else on the record changes. Used by the token manager after a refresh.
func (s *Store) UpdateCredential(address string, credential *oauth2.Token) error {
	if credential == nil {
		return fmt.Errorf("credential cannot be nil")
	}

	addr := Normalize(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}

	prev := rec.Credential
	rec.Credential = copyToken(credential)
	if err := s.persistLocked(); err != nil {
		rec.Credential = prev
		return err
	}

	s.logger.Debug("Updated credential", logging.UserHash(addr), "expiry", credential.Expiry)
	return nil
}

// Touch updates LastUsed to now. Best-effort: a persistence failure is
// logged but never returned, so it cannot fail the caller's operation.
func (s *Store) Touch(address string) {
	addr := Normalize(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[addr]
	if !ok {
		return
	}

	rec.LastUsed = time.Now()
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("Failed to persist last-used timestamp", logging.UserHash(addr), logging.Err(err))
	}
}

// Stats returns counters about the store for logging.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hasDefault := 0
	if s.def != "" {
		hasDefault = 1
	}
	return map[string]int{
		"accounts":    len(s.records),
		"has_default": hasDefault,
	}
}

// persistLocked writes the full state file atomically. Callers must hold the
// write lock. The temp file lives in the same directory so the rename stays
// on one filesystem.
func (s *Store) persistLocked() error {
	state := stateFile{DefaultAccount: s.def}
	for _, addr := range s.order {
		state.Accounts = append(state.Accounts, s.records[addr])
	}

	data, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode account state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".accounts-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set state file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

func copyRecord(rec *Record) *Record {
	out := *rec
	out.Credential = copyToken(rec.Credential)
	out.Scopes = append([]string(nil), rec.Scopes...)
	return &out
}

func copyToken(tok *oauth2.Token) *oauth2.Token {
	if tok == nil {
		return nil
	}
	out := *tok
	return &out
}

// Package mock provides an in-memory mock implementation of [storage.Store]
// for use in unit tests.
//
// The mock is safe for concurrent use, records method calls, and exposes
// exported fields for configuring return values. Saved ledgers are kept per
// namespace so a later Load returns what was saved unless LoadResults
// overrides it.
//
// Example:
//
//	st := &mock.Store{SaveError: errors.New("disk full")}
//	mgr := session.NewManager(session.Config{Store: st})
//	err := mgr.Upsert(ctx, id, rec) // returns "disk full"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tradeledger/internal/storage"
	"github.com/MrWong99/tradeledger/internal/trade"
)

// SaveCall records the arguments of a single [Store.Save] invocation.
type SaveCall struct {
	Namespace string
	// Ledger is a deep copy taken at call time.
	Ledger trade.Ledger
}

// Compile-time interface assertion.
var _ storage.Store = (*Store)(nil)

// Store is a mock implementation of [storage.Store].
type Store struct {
	mu sync.Mutex

	// LoadResults, when set for a namespace, is returned by Load instead of
	// the saved ledger.
	LoadResults map[string]storage.LoadResult

	// LoadError is returned by [Store.Load].
	LoadError error

	// SaveError is returned by [Store.Save]. The ledger is not retained when
	// it is set.
	SaveError error

	// BackupPath is returned by a successful [Store.CreateBackup]. Defaults
	// to "<ns>.backup".
	BackupPath string

	// BackupError is returned by [Store.CreateBackup].
	BackupError error

	// RestoreLedger and RestorePath are returned by [Store.RestoreFromBackup].
	RestoreLedger trade.Ledger
	RestorePath   string

	// BackupsResult is returned by [Store.Backups].
	BackupsResult []storage.BackupInfo

	// Saved holds the last successfully saved ledger per namespace.
	Saved map[string]trade.Ledger

	// LoadCalls records the namespace of each Load call.
	LoadCalls []string

	// SaveCalls records all Save invocations.
	SaveCalls []SaveCall

	// BackupCalls records the namespace of each CreateBackup call.
	BackupCalls []string

	// RestoreCalls records the namespace of each RestoreFromBackup call.
	RestoreCalls []string
}

// Load implements [storage.Store].
func (s *Store) Load(_ context.Context, ns string) (storage.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadCalls = append(s.LoadCalls, ns)
	if s.LoadError != nil {
		return storage.LoadResult{Ledger: trade.Ledger{}}, s.LoadError
	}
	if res, ok := s.LoadResults[ns]; ok {
		if res.Ledger == nil {
			res.Ledger = trade.Ledger{}
		} else {
			res.Ledger = res.Ledger.Clone()
		}
		return res, nil
	}
	if l, ok := s.Saved[ns]; ok {
		return storage.LoadResult{Ledger: l.Clone()}, nil
	}
	return storage.LoadResult{Ledger: trade.Ledger{}}, nil
}

// Save implements [storage.Store].
func (s *Store) Save(_ context.Context, ns string, ledger trade.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls = append(s.SaveCalls, SaveCall{Namespace: ns, Ledger: ledger.Clone()})
	if s.SaveError != nil {
		return s.SaveError
	}
	if s.Saved == nil {
		s.Saved = make(map[string]trade.Ledger)
	}
	s.Saved[ns] = ledger.Clone()
	return nil
}

// CreateBackup implements [storage.Store].
func (s *Store) CreateBackup(_ context.Context, ns string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BackupCalls = append(s.BackupCalls, ns)
	if s.BackupError != nil {
		return "", s.BackupError
	}
	if s.BackupPath != "" {
		return s.BackupPath, nil
	}
	return ns + ".backup", nil
}

// RestoreFromBackup implements [storage.Store].
func (s *Store) RestoreFromBackup(_ context.Context, ns string) (trade.Ledger, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RestoreCalls = append(s.RestoreCalls, ns)
	if s.RestoreLedger == nil {
		return trade.Ledger{}, ""
	}
	return s.RestoreLedger.Clone(), s.RestorePath
}

// Backups implements [storage.Store].
func (s *Store) Backups(_ context.Context, _ string) ([]storage.BackupInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.BackupInfo(nil), s.BackupsResult...), nil
}

// SaveCount returns the number of Save calls so far.
func (s *Store) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SaveCalls)
}

// BackupNamespaces returns a copy of BackupCalls.
func (s *Store) BackupNamespaces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.BackupCalls...)
}

// LastSave returns the most recent Save call and whether one exists.
func (s *Store) LastSave() (SaveCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.SaveCalls) == 0 {
		return SaveCall{}, false
	}
	return s.SaveCalls[len(s.SaveCalls)-1], true
}

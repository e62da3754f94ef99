// Package recovery defines SessionRecoveryStore, the persistence boundary
// SessionCoordinator uses to archive a chat session's history when it is
// idle-cleared, so a later continuation request can recover it.
package recovery

import (
	"context"
	"errors"
	"sync"

	"github.com/aether-frame/aether-frame/contracts"
)

// ErrNotFound is returned by Load when no record exists for a chat session.
var ErrNotFound = errors.New("recovery: record not found")

// Store is the abstract recovery store SessionCoordinator depends on.
// Implementations must make Save idempotent (an overwrite of an existing
// record for the same chat session is expected during the re-queue path
// described in the recovery protocol).
type Store interface {
	Save(ctx context.Context, record contracts.SessionRecoveryRecord) error
	Load(ctx context.Context, chatSessionID string) (contracts.SessionRecoveryRecord, error)
	Delete(ctx context.Context, chatSessionID string) error
}

// InMemStore is a process-local Store, the default when no durable store is
// configured.
type InMemStore struct {
	mu      sync.RWMutex
	records map[string]contracts.SessionRecoveryRecord
}

// NewInMemStore constructs an empty InMemStore.
func NewInMemStore() *InMemStore {
	return &InMemStore{records: map[string]contracts.SessionRecoveryRecord{}}
}

// Save stores (or replaces) the record for record.ChatSessionID.
func (s *InMemStore) Save(ctx context.Context, record contracts.SessionRecoveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ChatSessionID] = record
	return nil
}

// Load returns the archived record for chatSessionID, or ErrNotFound.
func (s *InMemStore) Load(ctx context.Context, chatSessionID string) (contracts.SessionRecoveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[chatSessionID]
	if !ok {
		return contracts.SessionRecoveryRecord{}, ErrNotFound
	}
	return rec, nil
}

// Delete purges the record for chatSessionID. No-op if absent.
func (s *InMemStore) Delete(ctx context.Context, chatSessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, chatSessionID)
	return nil
}

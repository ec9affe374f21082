package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calade/reportdeck/model"
)

// MemorySessionStore is an in-memory Store for single-instance deployments
// and tests.
type MemorySessionStore struct {
	mu      sync.RWMutex
	records map[string]model.SessionRecord
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{records: make(map[string]model.SessionRecord)}
}

// Create persists a new session record.
func (s *MemorySessionStore) Create(_ context.Context, rec model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("session %q already exists", rec.ID))
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.LastActiveAt.IsZero() {
		rec.LastActiveAt = now
	}
	s.records[rec.ID] = rec
	return nil
}

// Get retrieves a session record by id, scoped to tenant.
func (s *MemorySessionStore) Get(_ context.Context, tenantID, sessionID string) (model.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[sessionID]
	if !exists || rec.TenantID != tenantID {
		return model.SessionRecord{}, model.NewSessionNotFoundError(
			fmt.Sprintf("session %q not found", sessionID),
		)
	}
	return rec, nil
}

// Update persists an updated record with optimistic locking.
func (s *MemorySessionStore) Update(_ context.Context, rec model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[rec.ID]
	if !exists {
		return model.NewSessionNotFoundError(fmt.Sprintf("session %q not found", rec.ID))
	}
	if existing.Version != rec.Version {
		return model.NewConflictError(
			fmt.Sprintf("session %q version conflict (expected %d, got %d)", rec.ID, rec.Version, existing.Version),
		)
	}

	rec.Version++
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	s.records[rec.ID] = rec
	return nil
}

// Touch advances the last-active timestamp without a version bump.
func (s *MemorySessionStore) Touch(_ context.Context, tenantID, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[sessionID]
	if !exists || rec.TenantID != tenantID {
		return model.NewSessionNotFoundError(fmt.Sprintf("session %q not found", sessionID))
	}
	rec.LastActiveAt = at
	s.records[sessionID] = rec
	return nil
}

// Delete removes a session record.
func (s *MemorySessionStore) Delete(_ context.Context, tenantID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[sessionID]
	if !exists || rec.TenantID != tenantID {
		return model.NewSessionNotFoundError(fmt.Sprintf("session %q not found", sessionID))
	}
	delete(s.records, sessionID)
	return nil
}

// DeleteIdle removes records idle since before the cutoff.
func (s *MemorySessionStore) DeleteIdle(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if rec.LastActiveAt.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemorySessionStore) HealthCheck(context.Context) error { return nil }

// Len reports the number of stored records.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

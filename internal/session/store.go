// Package session manages live report-builder sessions: one builder plus
// extension per session, serialized per-session operations, idle eviction,
// and write-through persistence so a restarted instance can resume.
package session

import (
	"context"
	"time"

	"github.com/calade/reportdeck/model"
)

// Store persists session records.
type Store interface {
	// Create persists a new session record. Returns CONFLICT if the id is
	// already taken.
	Create(ctx context.Context, rec model.SessionRecord) error

	// Get retrieves a session record by id, scoped to a tenant. Returns
	// SESSION_NOT_FOUND if the record doesn't exist or belongs to a
	// different tenant.
	Get(ctx context.Context, tenantID, sessionID string) (model.SessionRecord, error)

	// Update persists an updated record with optimistic locking. The version
	// must match the stored version; the store increments it. Returns
	// CONFLICT on a version mismatch.
	Update(ctx context.Context, rec model.SessionRecord) error

	// Touch advances a record's last-active timestamp without changing its
	// state or version.
	Touch(ctx context.Context, tenantID, sessionID string, at time.Time) error

	// Delete removes a session record.
	Delete(ctx context.Context, tenantID, sessionID string) error

	// DeleteIdle removes records whose last activity is before the cutoff
	// and reports how many were removed.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

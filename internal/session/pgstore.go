package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calade/reportdeck/model"
)

// PgSessionStore is a PostgreSQL-backed Store using pgx/v5. It expects a
// report_sessions table with columns (id text primary key, tenant_id text,
// subject_id text, state jsonb, version integer, created_at timestamptz,
// updated_at timestamptz, last_active_at timestamptz).
type PgSessionStore struct {
	pool *pgxpool.Pool
}

// NewPgSessionStore creates a PostgreSQL session store.
func NewPgSessionStore(pool *pgxpool.Pool) *PgSessionStore {
	return &PgSessionStore{pool: pool}
}

// Create inserts a new session record.
func (s *PgSessionStore) Create(ctx context.Context, rec model.SessionRecord) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.LastActiveAt.IsZero() {
		rec.LastActiveAt = now
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO report_sessions (
			id, tenant_id, subject_id, state, version,
			created_at, updated_at, last_active_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.TenantID, rec.SubjectID, stateJSON, rec.Version,
		rec.CreatedAt, now, rec.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session record by id, scoped to tenant.
func (s *PgSessionStore) Get(ctx context.Context, tenantID, sessionID string) (model.SessionRecord, error) {
	var rec model.SessionRecord
	var stateJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, subject_id, state, version,
		       created_at, updated_at, last_active_at
		FROM report_sessions
		WHERE id = $1 AND tenant_id = $2`,
		sessionID, tenantID,
	).Scan(
		&rec.ID, &rec.TenantID, &rec.SubjectID, &stateJSON, &rec.Version,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.LastActiveAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SessionRecord{}, model.NewSessionNotFoundError(
			fmt.Sprintf("session %q not found", sessionID),
		)
	}
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("query session: %w", err)
	}

	if stateJSON != nil {
		if err := json.Unmarshal(stateJSON, &rec.State); err != nil {
			return model.SessionRecord{}, fmt.Errorf("unmarshal session state: %w", err)
		}
	}
	return rec, nil
}

// Update persists an updated record with optimistic locking.
func (s *PgSessionStore) Update(ctx context.Context, rec model.SessionRecord) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE report_sessions SET
			state = $1,
			version = $2,
			updated_at = $3,
			last_active_at = $4
		WHERE id = $5 AND version = $6`,
		stateJSON, rec.Version+1, time.Now().UTC(), rec.LastActiveAt,
		rec.ID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("session %q version conflict (expected %d)", rec.ID, rec.Version),
		)
	}
	return nil
}

// Touch advances the last-active timestamp without a version bump.
func (s *PgSessionStore) Touch(ctx context.Context, tenantID, sessionID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE report_sessions SET last_active_at = $1
		WHERE id = $2 AND tenant_id = $3`,
		at, sessionID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewSessionNotFoundError(fmt.Sprintf("session %q not found", sessionID))
	}
	return nil
}

// Delete removes a session record.
func (s *PgSessionStore) Delete(ctx context.Context, tenantID, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM report_sessions
		WHERE id = $1 AND tenant_id = $2`,
		sessionID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewSessionNotFoundError(fmt.Sprintf("session %q not found", sessionID))
	}
	return nil
}

// DeleteIdle removes records idle since before the cutoff.
func (s *PgSessionStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM report_sessions
		WHERE last_active_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// HealthCheck pings the database.
func (s *PgSessionStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

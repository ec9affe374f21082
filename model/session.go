package model

import "time"

// SessionState is the persisted portion of a builder session: everything
// needed to resume the report being built. Live-only state (history, cached
// results, refresh timers) restarts empty after rehydration.
type SessionState struct {
	Definition   ReportDefinition `json:"definition"`
	CurrentStep  int              `json:"current_step"`
	AdvancedMode bool             `json:"advanced_mode"`
	Stats        StatsView        `json:"stats"`
}

// SessionRecord is a builder session as persisted by a session store.
type SessionRecord struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	SubjectID    string       `json:"subject_id"`
	State        SessionState `json:"state"`
	Version      int          `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LastActiveAt time.Time    `json:"last_active_at"`
}

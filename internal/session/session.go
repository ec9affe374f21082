package session

import (
	"sync"
	"time"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/internal/dialog"
	"github.com/calade/reportdeck/model"
)

// Session is one live builder session. Operations are serialized by the
// session mutex, mirroring the single UI thread the builder state machine
// assumes.
type Session struct {
	ID        string
	TenantID  string
	SubjectID string

	mu         sync.Mutex
	ext        *builder.Extension
	notes      *collector
	createdAt  time.Time
	lastActive time.Time
	version    int

	// Open pickers are live dialog state scoped to this instance; a
	// separate lock keeps them reachable while an operation holds mu.
	pmu  sync.Mutex
	bulk *dialog.BulkFieldPicker
	rec  *dialog.RecommendationPicker
}

// Extension exposes the session's builder extension for read-only access.
// Mutating operations go through Manager.Do so notifications are drained
// and state is written through.
func (s *Session) Extension() *builder.Extension {
	return s.ext
}

// LastActive reports when the session last performed an operation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// CreatedAt reports when the session was opened.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// do runs one operation under the session mutex and returns the
// notifications it produced.
func (s *Session) do(fn func(*builder.Extension) error) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.ext)
	s.lastActive = time.Now().UTC()
	return s.notes.Drain(), err
}

// record snapshots the session into its persisted form.
func (s *Session) record() model.SessionRecord {
	st := s.ext.Base().State()

	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionRecord{
		ID:        s.ID,
		TenantID:  s.TenantID,
		SubjectID: s.SubjectID,
		State: model.SessionState{
			Definition:   st.Definition,
			CurrentStep:  st.CurrentStep,
			AdvancedMode: st.AdvancedMode,
			Stats:        s.ext.Stats().View(),
		},
		Version:      s.version,
		CreatedAt:    s.createdAt,
		LastActiveAt: s.lastActive,
	}
}

func (s *Session) setVersion(v int) {
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

func (s *Session) close() {
	s.ext.Close()
}

// SetBulkPicker stores the open bulk-add picker, replacing any previous one.
// Nil closes it.
func (s *Session) SetBulkPicker(p *dialog.BulkFieldPicker) {
	s.pmu.Lock()
	s.bulk = p
	s.pmu.Unlock()
}

// BulkPicker returns the open bulk-add picker, or nil.
func (s *Session) BulkPicker() *dialog.BulkFieldPicker {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	return s.bulk
}

// SetRecommendationPicker stores the open recommendation picker. Nil closes it.
func (s *Session) SetRecommendationPicker(p *dialog.RecommendationPicker) {
	s.pmu.Lock()
	s.rec = p
	s.pmu.Unlock()
}

// RecommendationPicker returns the open recommendation picker, or nil.
func (s *Session) RecommendationPicker() *dialog.RecommendationPicker {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	return s.rec
}

// collector buffers notifications emitted by builder operations so each
// HTTP response can carry the messages its operation produced.
type collector struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (c *collector) StateChanged(string) {}

func (c *collector) Notified(n model.Notification) {
	c.mu.Lock()
	c.notes = append(c.notes, n)
	c.mu.Unlock()
}

// Drain returns the buffered notifications and resets the buffer.
func (c *collector) Drain() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notes
	c.notes = nil
	return out
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/internal/observability"
	"github.com/calade/reportdeck/model"
)

// Session lifecycle defaults.
const (
	DefaultIdleTTL       = 2 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Config tunes session lifecycle and the builders the manager creates.
type Config struct {
	IdleTTL         time.Duration
	SweepInterval   time.Duration
	PreviewRowLimit int
	HistoryCapacity int
	RefreshInterval time.Duration
	// Recommendations overrides the builtin recommended-field table when
	// non-nil.
	Recommendations map[string][]string
}

// Manager owns the live sessions of this instance. Misses are rehydrated
// from the store, so sessions survive restarts; live-only state (history,
// cached results, refresh timers) restarts empty.
type Manager struct {
	gw      builder.Gateway
	store   Store
	cache   builder.ResultCache
	cfg     Config
	logger  *zap.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	live   map[string]*Session
	closed bool

	stop chan struct{}
}

// NewManager creates a manager and starts its idle sweeper. store may be
// nil, in which case sessions live in memory only.
func NewManager(gw builder.Gateway, store Store, cache builder.ResultCache, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Manager {
	if store == nil {
		store = NewMemorySessionStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	m := &Manager{
		gw:      gw,
		store:   store,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		live:    make(map[string]*Session),
		stop:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Create opens a new session for the caller in the request context and
// loads the initial model catalog. The returned notifications are the ones
// the initial load produced.
func (m *Manager) Create(ctx context.Context) (*Session, []model.Notification, error) {
	rctx := model.RequestContextFrom(ctx)
	tenant, subject := "", ""
	if rctx != nil {
		tenant, subject = rctx.TenantID, rctx.SubjectID
	}

	sess := m.buildSession(uuid.NewString(), tenant, subject)
	notes, _ := sess.do(func(ext *builder.Extension) error {
		ext.Base().LoadInitialData(ctx)
		return nil
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sess.close()
		return nil, nil, model.NewInternalError()
	}
	m.live[sess.ID] = sess
	m.mu.Unlock()

	if cerr := m.store.Create(ctx, sess.record()); cerr != nil {
		m.logger.Warn("session record create failed",
			zap.String("session_id", sess.ID), zap.Error(cerr))
	}
	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	m.logger.Info("session opened",
		zap.String("session_id", sess.ID),
		zap.String("tenant_id", tenant),
		zap.String("subject_id", subject),
	)
	return sess, notes, nil
}

// Get returns the live session, rehydrating it from the store when this
// instance doesn't hold it. Lookups are tenant-scoped.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	rctx := model.RequestContextFrom(ctx)
	tenant := ""
	if rctx != nil {
		tenant = rctx.TenantID
	}

	m.mu.RLock()
	sess, ok := m.live[sessionID]
	m.mu.RUnlock()
	if ok {
		if sess.TenantID != tenant {
			return nil, model.NewSessionNotFoundError(fmt.Sprintf("session %q not found", sessionID))
		}
		return sess, nil
	}
	return m.rehydrate(ctx, tenant, sessionID)
}

// Do runs one operation against the session: resolve, serialize under the
// session mutex, drain notifications, and write state through to the store
// after successful mutations. The resolved session is returned so callers
// can read its metadata without a second lookup.
func (m *Manager) Do(ctx context.Context, sessionID string, mutating bool, fn func(*builder.Extension) error) (*Session, []model.Notification, error) {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	notes, opErr := sess.do(fn)
	if mutating && opErr == nil {
		m.persist(ctx, sess)
	} else {
		m.touch(ctx, sess)
	}
	return sess, notes, opErr
}

// Destroy closes a session and removes its record.
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	rctx := model.RequestContextFrom(ctx)
	tenant := ""
	if rctx != nil {
		tenant = rctx.TenantID
	}

	m.mu.Lock()
	sess, ok := m.live[sessionID]
	if ok && sess.TenantID != tenant {
		m.mu.Unlock()
		return model.NewSessionNotFoundError(fmt.Sprintf("session %q not found", sessionID))
	}
	if ok {
		delete(m.live, sessionID)
	}
	m.mu.Unlock()

	if ok {
		sess.close()
		if m.metrics != nil {
			m.metrics.SessionClosed()
		}
	}

	err := m.store.Delete(ctx, tenant, sessionID)
	if err != nil && !ok {
		return err
	}
	if err != nil && errCode(err) != model.ErrSessionNotFound {
		m.logger.Warn("session record delete failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	m.logger.Info("session closed", zap.String("session_id", sessionID))
	return nil
}

// Len reports the number of live sessions on this instance.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// HealthCheck verifies the session store is reachable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}

// Close stops the sweeper and closes every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stop)
	sessions := make([]*Session, 0, len(m.live))
	for _, sess := range m.live {
		sessions = append(sessions, sess)
	}
	m.live = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
		if m.metrics != nil {
			m.metrics.SessionClosed()
		}
	}
}

func (m *Manager) buildSession(id, tenant, subject string) *Session {
	base := builder.New(m.gw,
		builder.WithLogger(m.logger),
		builder.WithBuilderMetrics(m.metrics),
		builder.WithPreviewRowLimit(m.cfg.PreviewRowLimit),
	)
	var extOpts []builder.ExtensionOption
	if m.cfg.HistoryCapacity > 0 {
		extOpts = append(extOpts, builder.WithHistoryCapacity(m.cfg.HistoryCapacity))
	}
	if m.cfg.RefreshInterval > 0 {
		extOpts = append(extOpts, builder.WithRefreshInterval(m.cfg.RefreshInterval))
	}
	if m.cfg.Recommendations != nil {
		extOpts = append(extOpts, builder.WithRecommendations(m.cfg.Recommendations))
	}
	ext := builder.NewExtension(base, m.cache, extOpts...)

	notes := &collector{}
	base.RegisterObserver(notes)

	now := time.Now().UTC()
	return &Session{
		ID:         id,
		TenantID:   tenant,
		SubjectID:  subject,
		ext:        ext,
		notes:      notes,
		createdAt:  now,
		lastActive: now,
	}
}

// rehydrate rebuilds a session from its stored record. Restore failures
// (say, a model that no longer exists) leave a usable fresh session rather
// than failing the request.
func (m *Manager) rehydrate(ctx context.Context, tenant, sessionID string) (*Session, error) {
	rec, err := m.store.Get(ctx, tenant, sessionID)
	if err != nil {
		return nil, err
	}

	sess := m.buildSession(rec.ID, rec.TenantID, rec.SubjectID)
	sess.createdAt = rec.CreatedAt
	sess.version = rec.Version

	_, rerr := sess.do(func(ext *builder.Extension) error {
		ext.Base().LoadInitialData(ctx)
		if derr := ext.RestoreDefinition(ctx, rec.State.Definition, rec.State.CurrentStep, rec.State.AdvancedMode); derr != nil {
			return derr
		}
		ext.RestoreStats(rec.State.Stats)
		return nil
	})
	if rerr != nil {
		m.logger.Warn("session rehydration incomplete",
			zap.String("session_id", rec.ID), zap.Error(rerr))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sess.close()
		return nil, model.NewSessionNotFoundError(fmt.Sprintf("session %q not found", sessionID))
	}
	if existing, ok := m.live[sessionID]; ok {
		m.mu.Unlock()
		sess.close()
		return existing, nil
	}
	m.live[sessionID] = sess
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	m.logger.Info("session rehydrated", zap.String("session_id", rec.ID))
	return sess, nil
}

// persist writes the session state through to the store. A stale version is
// retried once against the stored one; persistence failures are logged, not
// surfaced, so a store outage doesn't fail live operations.
func (m *Manager) persist(ctx context.Context, sess *Session) {
	rec := sess.record()
	err := m.store.Update(ctx, rec)
	if errCode(err) == model.ErrConflict {
		if cur, gerr := m.store.Get(ctx, rec.TenantID, rec.ID); gerr == nil {
			rec.Version = cur.Version
			err = m.store.Update(ctx, rec)
		}
	}
	if errCode(err) == model.ErrSessionNotFound {
		rec.Version = 0
		if cerr := m.store.Create(ctx, rec); cerr == nil {
			sess.setVersion(0)
			return
		}
	}
	if err != nil {
		m.logger.Warn("session write-through failed",
			zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	sess.setVersion(rec.Version + 1)
}

func (m *Manager) touch(ctx context.Context, sess *Session) {
	if err := m.store.Touch(ctx, sess.TenantID, sess.ID, sess.LastActive()); err != nil {
		m.logger.Debug("session touch failed",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep(context.Background())
		}
	}
}

// sweep closes sessions idle beyond the TTL and removes their records.
func (m *Manager) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.cfg.IdleTTL)

	var expired []*Session
	m.mu.Lock()
	for id, sess := range m.live {
		if sess.LastActive().Before(cutoff) {
			delete(m.live, id)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.close()
		if m.metrics != nil {
			m.metrics.RecordSessionExpired()
			m.metrics.SessionClosed()
		}
		m.logger.Info("session expired",
			zap.String("session_id", sess.ID),
			zap.Time("last_active", sess.LastActive()),
		)
	}

	if n, err := m.store.DeleteIdle(ctx, cutoff); err != nil {
		m.logger.Warn("idle session cleanup failed", zap.Error(err))
	} else if n > 0 {
		m.logger.Debug("idle session records removed", zap.Int("count", n))
	}
}

func errCode(err error) string {
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ""
}

package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calade/reportdeck/internal/dialog"
	"github.com/calade/reportdeck/internal/observability"
	"github.com/calade/reportdeck/model"
)

// Extension layers result caching, an undo/redo history, bulk field
// operations, recommendations, auto-refresh, and settings interchange on top
// of a base Builder. It holds the base by composition and reaches state only
// through it; its own bookkeeping (history, stats, refresh timer) lives here.
type Extension struct {
	base  *Builder
	cache ResultCache

	mu       sync.Mutex
	history  *historyLog
	stats    model.ExecutionStats
	lastRctx *model.RequestContext
	lastOpts ExecuteOptions

	// execMu serializes executions; an auto-refresh tick that cannot take
	// it immediately is skipped rather than queued.
	execMu sync.Mutex

	refreshMu       sync.Mutex
	refreshEnabled  bool
	refreshInterval time.Duration
	refreshStop     chan struct{}
	closed          bool

	// recommendations overrides the builtin per-model table when non-nil.
	recommendations map[string][]string
}

// ExtensionOption configures an Extension.
type ExtensionOption func(*Extension)

// WithHistoryCapacity bounds the undo/redo log.
func WithHistoryCapacity(n int) ExtensionOption {
	return func(x *Extension) { x.history = newHistoryLog(n) }
}

// WithRefreshInterval sets the auto-refresh period.
func WithRefreshInterval(d time.Duration) ExtensionOption {
	return func(x *Extension) {
		if d > 0 {
			x.refreshInterval = d
		}
	}
}

// WithRecommendations replaces the builtin recommended-field table.
func WithRecommendations(table map[string][]string) ExtensionOption {
	return func(x *Extension) { x.recommendations = table }
}

// DefaultRefreshInterval is the auto-refresh period when none is configured.
const DefaultRefreshInterval = 30 * time.Second

// NewExtension wraps base with the extended feature set. A nil cache gets an
// in-memory one with default bounds.
func NewExtension(base *Builder, cache ResultCache, opts ...ExtensionOption) *Extension {
	if cache == nil {
		cache = NewMemoryResultCache(0)
	}
	x := &Extension{
		base:            base,
		cache:           cache,
		history:         newHistoryLog(0),
		refreshInterval: DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Base returns the wrapped builder.
func (x *Extension) Base() *Builder {
	return x.base
}

// Cache returns the result cache.
func (x *Extension) Cache() ResultCache {
	return x.cache
}

// SetAdvancedMode toggles the advanced-mode flag.
func (x *Extension) SetAdvancedMode(on bool) {
	x.base.mu.Lock()
	x.base.state.AdvancedMode = on
	x.base.mu.Unlock()
	x.base.fireStateChanged("advanced_mode_changed")
	if on {
		x.base.notifyInfo("Advanced mode enabled")
	} else {
		x.base.notifyInfo("Advanced mode disabled")
	}
}

// --- field bulk operations ---

// DuplicateField clones the named selected field, marks the copy's label,
// and appends it at the end. Unknown names are a no-op.
func (x *Extension) DuplicateField(name string) {
	x.base.mu.Lock()
	i := x.base.selectedIndexLocked(name)
	if i < 0 {
		x.base.mu.Unlock()
		return
	}
	dup := x.base.state.Definition.SelectedFields[i]
	dup.Label += " (copy)"
	dup.Sequence = len(x.base.state.Definition.SelectedFields) + 1
	x.base.state.Definition.SelectedFields = append(x.base.state.Definition.SelectedFields, dup)
	snap := x.base.state.snapshot()
	x.base.mu.Unlock()

	x.recordHistory("duplicate_field", name, snap)
	x.base.fireStateChanged("field_duplicated")
}

// OpenBulkAdd computes the addable fields (available minus selected) and
// opens a bulk picker over them. With nothing left to add it warns and
// returns nil. Confirming the picker appends the chosen fields and logs one
// history entry recording the count.
func (x *Extension) OpenBulkAdd() *dialog.BulkFieldPicker {
	st := x.base.State()

	selected := make(map[string]bool, len(st.Definition.SelectedFields))
	for _, f := range st.Definition.SelectedFields {
		selected[f.Name] = true
	}
	var candidates []model.FieldDescriptor
	for _, f := range st.AvailableFields {
		if !selected[f.Name] {
			candidates = append(candidates, f)
		}
	}

	if len(candidates) == 0 {
		x.base.notifyWarning("All available fields are already in the report")
		return nil
	}
	return dialog.NewBulkFieldPicker(candidates, x.applyBulkAdd)
}

// applyBulkAdd appends one field per chosen name, continuing the sequence.
func (x *Extension) applyBulkAdd(names []string) {
	if len(names) == 0 {
		return
	}

	x.base.mu.Lock()
	added := 0
	for _, name := range names {
		desc, ok := x.base.availableFieldLocked(name)
		if !ok || x.base.selectedIndexLocked(name) >= 0 {
			continue
		}
		x.base.state.Definition.SelectedFields = append(x.base.state.Definition.SelectedFields, model.FieldSpec{
			Name:        desc.Name,
			Label:       desc.Label,
			Type:        desc.Type,
			Visible:     true,
			Sequence:    len(x.base.state.Definition.SelectedFields) + 1,
			FormatType:  model.FormatTypeFor(desc.Type),
			Aggregation: model.DefaultAggregation,
		})
		added++
	}
	snap := x.base.state.snapshot()
	x.base.mu.Unlock()

	if added == 0 {
		return
	}
	x.recordHistory("bulk_add_fields", map[string]any{"count": added}, snap)
	x.base.fireStateChanged("bulk_fields_added")
	x.base.notifySuccess(fmt.Sprintf("Added %d fields to the report", added))
}

// OpenRecommendations opens a picker over the recommended fields for the
// selected model that are available and not yet selected. Models without
// recommendations produce an info notification and nil. Accepted fields are
// added through the standard AddField path.
func (x *Extension) OpenRecommendations() *dialog.RecommendationPicker {
	st := x.base.State()

	var modelName string
	if st.Definition.SelectedModel != nil {
		modelName = st.Definition.SelectedModel.Model
	}

	available := make([]string, len(st.AvailableFields))
	byName := make(map[string]model.FieldDescriptor, len(st.AvailableFields))
	for i, f := range st.AvailableFields {
		available[i] = f.Name
		byName[f.Name] = f
	}
	selected := make([]string, len(st.Definition.SelectedFields))
	for i, f := range st.Definition.SelectedFields {
		selected[i] = f.Name
	}

	names := recommendationsFor(x.recommendations, modelName, available, selected)
	if len(names) == 0 {
		x.base.notifyInfo("No field recommendations for this model")
		return nil
	}

	recs := make([]model.FieldDescriptor, 0, len(names))
	for _, name := range names {
		recs = append(recs, byName[name])
	}
	return dialog.NewRecommendationPicker(recs, func(accepted []string) {
		for _, name := range accepted {
			x.base.AddField(name)
		}
		if len(accepted) > 0 {
			x.base.notifySuccess(fmt.Sprintf("Added %d recommended fields", len(accepted)))
		}
	})
}

// --- cached execution ---

// ExecuteWithCache runs the report through the result cache: a hit restores
// the stored rows without touching the backend, a miss executes for real and
// stores the result. Execution statistics cover real executions only.
func (x *Extension) ExecuteWithCache(ctx context.Context, opts ExecuteOptions) {
	x.execMu.Lock()
	defer x.execMu.Unlock()

	x.mu.Lock()
	x.lastRctx = model.RequestContextFrom(ctx)
	x.lastOpts = opts
	x.mu.Unlock()

	x.executeCached(ctx, opts)
}

// executeCached is the shared cached-execution path. Callers hold execMu.
func (x *Extension) executeCached(ctx context.Context, opts ExecuteOptions) {
	log := observability.LoggerFrom(ctx, x.base.logger)

	st := x.base.State()
	if st.Definition.SelectedModel == nil {
		// Let the base path produce the validation errors.
		x.base.runExecution(ctx, opts)
		return
	}
	key := cacheKey(st.Definition)

	lookupCtx, span := observability.StartSpan(ctx, "cache.lookup")
	res, hit, err := x.cache.Get(lookupCtx, key)
	span.SetAttributes(observability.AttrCacheHit.Bool(err == nil && hit))
	observability.EndSpanWithError(span, err)
	if err != nil {
		log.Warn("result cache lookup failed", zap.Error(err))
		hit = false
	}

	if hit {
		if x.base.metrics != nil {
			x.base.metrics.RecordResultCacheHit()
		}
		x.base.mu.Lock()
		x.base.state.ReportData = res.Rows
		x.base.state.ReportCount = res.Count
		x.base.state.Executed = true
		x.base.state.CurrentStep = StepLast
		x.base.mu.Unlock()

		log.Debug("result cache hit",
			zap.String("key", key), zap.Int("rows", len(res.Rows)))
		x.base.fireStateChanged("executed")
		x.base.notifyInfo("Results loaded from cache")
		return
	}

	if x.base.metrics != nil {
		x.base.metrics.RecordResultCacheMiss()
	}

	start := time.Now()
	ok := x.base.runExecution(ctx, opts)
	if !ok {
		return
	}
	elapsed := time.Since(start)

	x.mu.Lock()
	x.stats.Record(elapsed)
	x.mu.Unlock()

	st = x.base.State()
	storeCtx, storeSpan := observability.StartSpan(ctx, "cache.store")
	err = x.cache.Put(storeCtx, key, st.ReportData, st.ReportCount)
	observability.EndSpanWithError(storeSpan, err)
	if err != nil {
		log.Warn("result cache store failed", zap.Error(err))
	}
}

// ClearCache drops every cached result of this session.
func (x *Extension) ClearCache(ctx context.Context) error {
	if err := x.cache.Clear(ctx); err != nil {
		return err
	}
	x.base.notifyInfo("Result cache cleared")
	return nil
}

// Stats returns a copy of the execution statistics.
func (x *Extension) Stats() model.ExecutionStats {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.stats
}

// cacheKey derives the deterministic cache key for a definition: a sha256
// over the canonical JSON of the execution-relevant parts.
func cacheKey(def model.ReportDefinition) string {
	type sortKey struct {
		Field     string `json:"field"`
		Direction string `json:"direction"`
	}
	input := struct {
		Model   string                 `json:"model"`
		Fields  []string               `json:"fields"`
		Filters []model.PreparedFilter `json:"filters"`
		Sorts   []sortKey              `json:"sorts"`
		Groups  []string               `json:"groups"`
	}{
		Model:   def.SelectedModel.Model,
		Fields:  make([]string, 0, len(def.SelectedFields)),
		Filters: prepareFilters(def.Filters),
	}
	for _, f := range def.SelectedFields {
		input.Fields = append(input.Fields, f.Name)
	}
	for _, s := range def.Sorts {
		if s.Field != "" {
			input.Sorts = append(input.Sorts, sortKey{Field: s.Field, Direction: s.Direction})
		}
	}
	for _, g := range def.Groups {
		if g.Field != "" {
			input.Groups = append(input.Groups, g.Field)
		}
	}

	data, _ := json.Marshal(input)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// --- history ---

func (x *Extension) recordHistory(action string, data any, snap model.Snapshot) {
	x.mu.Lock()
	x.history.add(action, data, snap)
	depth := x.history.len()
	x.mu.Unlock()
	if x.base.metrics != nil {
		x.base.metrics.RecordHistoryDepth(depth)
	}
}

// History returns a copy of the retained history entries, oldest first.
func (x *Extension) History() []model.HistoryEntry {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.history.view()
}

// Undo restores the previous history snapshot, or warns when already at the
// oldest entry.
func (x *Extension) Undo() {
	x.mu.Lock()
	snap, ok := x.history.undo()
	x.mu.Unlock()
	if !ok {
		x.base.notifyWarning("Nothing to undo")
		return
	}
	x.restoreSnapshot(snap)
}

// Redo restores the next history snapshot, or warns when already at the
// newest entry.
func (x *Extension) Redo() {
	x.mu.Lock()
	snap, ok := x.history.redo()
	x.mu.Unlock()
	if !ok {
		x.base.notifyWarning("Nothing to redo")
		return
	}
	x.restoreSnapshot(snap)
}

// restoreSnapshot overwrites the four mutable collections wholesale.
func (x *Extension) restoreSnapshot(snap model.Snapshot) {
	x.base.mu.Lock()
	x.base.state.Definition.SelectedFields = snap.SelectedFields
	x.base.state.Definition.Filters = snap.Filters
	x.base.state.Definition.Groups = snap.Groups
	x.base.state.Definition.Sorts = snap.Sorts
	x.base.mu.Unlock()
	x.base.fireStateChanged("state_restored")
}

// --- settings interchange ---

// ExportSettings serializes the current definition into the settings
// interchange document and a timestamped download name.
func (x *Extension) ExportSettings() (string, model.SettingsDocument) {
	st := x.base.State()

	var modelName string
	if st.Definition.SelectedModel != nil {
		modelName = st.Definition.SelectedModel.Model
	}
	doc := model.SettingsDocument{
		Model:   modelName,
		Fields:  st.Definition.SelectedFields,
		Filters: st.Definition.Filters,
		Groups:  st.Definition.Groups,
		Sorts:   st.Definition.Sorts,
		Metadata: model.SettingsMetadata{
			ExportedAt: time.Now().UTC(),
			Version:    model.SettingsVersion,
		},
	}
	return fmt.Sprintf("report_settings_%d.json", time.Now().Unix()), doc
}

// ImportSettings replaces the definition from a settings document. The
// document must carry a model and at least one field; both are checked
// before any state changes. The model is re-resolved against the loaded
// models, which reloads its fields.
func (x *Extension) ImportSettings(ctx context.Context, data []byte) error {
	var doc model.SettingsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.NewImportFormatError("settings file is not valid JSON")
	}
	if doc.Model == "" {
		return model.NewImportFormatError("missing required field: model")
	}
	if len(doc.Fields) == 0 {
		return model.NewImportFormatError("missing required field: fields")
	}

	st := x.base.State()
	var target *model.ModelDescriptor
	for i := range st.AvailableModels {
		if st.AvailableModels[i].Model == doc.Model {
			m := st.AvailableModels[i]
			target = &m
			break
		}
	}
	if target == nil {
		return model.NewModelNotFoundError(fmt.Sprintf("model %s is not available", doc.Model))
	}

	if err := x.base.SetModel(ctx, target.ID); err != nil {
		return err
	}

	x.base.mu.Lock()
	x.base.state.Definition.SelectedFields = normalizeImportedFields(doc.Fields)
	x.base.state.Definition.Filters = normalizeImportedFilters(doc.Filters)
	x.base.state.Definition.Groups = normalizeImportedGroups(doc.Groups)
	x.base.state.Definition.Sorts = normalizeImportedSorts(doc.Sorts)
	snap := x.base.state.snapshot()
	x.base.mu.Unlock()

	x.recordHistory("import_settings", map[string]any{"model": doc.Model}, snap)
	x.base.fireStateChanged("settings_imported")
	x.base.notifySuccess("Settings imported successfully")
	return nil
}

// RestoreDefinition loads a persisted definition back into the builder,
// including step and advanced mode. Used when a session is rehydrated from
// its store; unlike ImportSettings it records no history and stays silent.
func (x *Extension) RestoreDefinition(ctx context.Context, def model.ReportDefinition, step int, advanced bool) error {
	if def.SelectedModel != nil {
		if err := x.base.SetModel(ctx, def.SelectedModel.ID); err != nil {
			return err
		}
	}

	x.base.mu.Lock()
	if def.SelectedModel != nil {
		x.base.state.Definition.SelectedFields = model.CloneFields(def.SelectedFields)
		x.base.state.Definition.Filters = model.CloneFilters(def.Filters)
		x.base.state.Definition.Groups = model.CloneGroups(def.Groups)
		x.base.state.Definition.Sorts = model.CloneSorts(def.Sorts)
	}
	if step >= StepFirst && step <= StepLast {
		x.base.state.CurrentStep = step
	}
	x.base.state.AdvancedMode = advanced
	x.base.mu.Unlock()

	x.base.fireStateChanged("state_restored")
	return nil
}

// RestoreStats seeds execution statistics from their persisted view.
func (x *Extension) RestoreStats(v model.StatsView) {
	x.mu.Lock()
	x.stats = model.ExecutionStats{
		Count:        v.Count,
		LastDuration: time.Duration(v.LastMs * float64(time.Millisecond)),
		AvgDuration:  time.Duration(v.AvgMs * float64(time.Millisecond)),
	}
	x.mu.Unlock()
}

// normalizeImportedFields fills derived attributes the document may omit and
// recomputes sequences.
func normalizeImportedFields(fields []model.FieldSpec) []model.FieldSpec {
	out := model.CloneFields(fields)
	for i := range out {
		out[i].Sequence = i + 1
		if out[i].FormatType == "" {
			out[i].FormatType = model.FormatTypeFor(out[i].Type)
		}
		if out[i].Aggregation == "" {
			out[i].Aggregation = model.DefaultAggregation
		}
	}
	return out
}

func normalizeImportedFilters(filters []model.FilterSpec) []model.FilterSpec {
	out := model.CloneFilters(filters)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		if out[i].Operator == "" {
			out[i].Operator = model.OpEquals
		}
	}
	return out
}

func normalizeImportedGroups(groups []model.GroupSpec) []model.GroupSpec {
	out := model.CloneGroups(groups)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}

func normalizeImportedSorts(sorts []model.SortSpec) []model.SortSpec {
	out := model.CloneSorts(sorts)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		if out[i].Direction == "" {
			out[i].Direction = "asc"
		}
	}
	return out
}

// Package builder implements the report-builder controller: an explicit state
// machine over model selection, field/filter/sort/group editing, validation,
// and report execution against the ORM gateway. Extension adds caching,
// history with undo/redo, auto-refresh, and settings interchange on top of the
// base Builder by composition.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calade/reportdeck/internal/gateway"
	"github.com/calade/reportdeck/internal/observability"
	"github.com/calade/reportdeck/model"
)

// Gateway is the slice of the ORM gateway client the builder depends on.
type Gateway interface {
	ListModels(ctx context.Context, rctx *model.RequestContext) ([]model.ModelDescriptor, error)
	ModelFields(ctx context.Context, rctx *model.RequestContext, modelName string) ([]model.FieldDescriptor, error)
	ExecuteReport(ctx context.Context, rctx *model.RequestContext, reportID int64, filters []model.PreparedFilter, limit int) ([]model.ReportRow, int, error)
	CreateReport(ctx context.Context, rctx *model.RequestContext, req gateway.CreateReportRequest) (int64, error)
	ValidateFilters(ctx context.Context, rctx *model.RequestContext, modelName string, filters []model.PreparedFilter) ([]gateway.FilterValidation, error)
	DownloadURL(reportID int64, format string, filters []model.PreparedFilter) (string, error)
}

// DefaultPreviewRowLimit caps preview executions when no limit is configured.
const DefaultPreviewRowLimit = 100

// Backend-rendered export formats. csv, json, and html are rendered locally.
var backendExportFormats = map[string]bool{
	"xlsx": true,
	"pdf":  true,
}

// Builder is the report-builder controller. All mutable state lives in an
// internal State struct guarded by a mutex; RPCs run outside the lock against
// input snapshots.
//
// Backend failures during state-producing operations (loading models or
// fields, executing) are absorbed into sticky error notifications, the way
// the interactive flow reports them; the error returns cover caller mistakes
// only. Operations whose result goes back to the caller (Export,
// SaveAsTemplate) propagate backend errors instead.
type Builder struct {
	mu           sync.Mutex
	gw           Gateway
	logger       *zap.Logger
	metrics      *observability.Metrics
	previewLimit int

	state     State
	observers []Observer
}

// Option configures optional collaborators of the Builder.
type Option func(*Builder)

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithBuilderMetrics wires Prometheus instruments into the builder.
func WithBuilderMetrics(m *observability.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithPreviewRowLimit overrides the preview execution row cap.
func WithPreviewRowLimit(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.previewLimit = n
		}
	}
}

// New creates a Builder talking to the given gateway.
func New(gw Gateway, opts ...Option) *Builder {
	b := &Builder{
		gw:           gw,
		logger:       zap.NewNop(),
		previewLimit: DefaultPreviewRowLimit,
		state:        State{CurrentStep: StepFirst},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterObserver adds an observer. Observers fire synchronously in
// registration order.
func (b *Builder) RegisterObserver(o Observer) {
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

// State returns a deep copy of the current state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.clone()
}

// --- observer plumbing ---

func (b *Builder) observerList() []Observer {
	b.mu.Lock()
	obs := append([]Observer(nil), b.observers...)
	b.mu.Unlock()
	return obs
}

func (b *Builder) fireStateChanged(event string) {
	for _, o := range b.observerList() {
		o.StateChanged(event)
	}
}

func (b *Builder) notify(n model.Notification) {
	for _, o := range b.observerList() {
		o.Notified(n)
	}
}

func (b *Builder) notifySuccess(msg string) { b.notify(model.NewSuccess(msg)) }
func (b *Builder) notifyInfo(msg string)    { b.notify(model.NewInfo(msg)) }
func (b *Builder) notifyWarning(msg string) { b.notify(model.NewWarning(msg)) }

// notifyError turns an error into a sticky notification, preferring the
// envelope message over the raw error text.
func (b *Builder) notifyError(err error) {
	msg := err.Error()
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		msg = env.Message
	}
	b.notify(model.NewError(msg))
}

func (b *Builder) setLoading(v bool) {
	b.mu.Lock()
	b.state.Loading = v
	b.mu.Unlock()
}

// --- initial data and model selection ---

// LoadInitialData fetches the selectable models. A gateway failure leaves the
// state untouched and surfaces one sticky error; it is not fatal to the
// session.
func (b *Builder) LoadInitialData(ctx context.Context) {
	log := observability.LoggerFrom(ctx, b.logger)
	rctx := model.RequestContextFrom(ctx)

	b.setLoading(true)
	defer b.setLoading(false)

	models, err := b.gw.ListModels(ctx, rctx)
	if err != nil {
		log.Warn("loading report models failed", zap.Error(err))
		b.notifyError(err)
		return
	}

	b.mu.Lock()
	b.state.AvailableModels = models
	b.mu.Unlock()

	log.Info("report models loaded", zap.Int("count", len(models)))
	b.fireStateChanged("models_loaded")
}

// SetModel selects the working model by id and reloads its fields. A zero id
// clears the selection and all dependent state. An id that is not among the
// loaded models is an error.
func (b *Builder) SetModel(ctx context.Context, modelID int64) error {
	log := observability.LoggerFrom(ctx, b.logger)
	rctx := model.RequestContextFrom(ctx)

	if modelID == 0 {
		b.mu.Lock()
		b.state.Definition = model.ReportDefinition{}
		b.state.AvailableFields = nil
		b.clearResultsLocked()
		b.state.CurrentStep = StepFirst
		b.mu.Unlock()
		b.fireStateChanged("model_cleared")
		return nil
	}

	b.mu.Lock()
	var selected *model.ModelDescriptor
	for i := range b.state.AvailableModels {
		if b.state.AvailableModels[i].ID == modelID {
			m := b.state.AvailableModels[i]
			selected = &m
			break
		}
	}
	b.mu.Unlock()

	if selected == nil {
		return model.NewModelNotFoundError(fmt.Sprintf("model %d is not available", modelID))
	}

	b.setLoading(true)
	defer b.setLoading(false)

	fields, err := b.gw.ModelFields(ctx, rctx, selected.Model)

	b.mu.Lock()
	b.state.Definition = model.ReportDefinition{SelectedModel: selected}
	b.clearResultsLocked()
	b.state.CurrentStep = StepFirst
	if err != nil {
		b.state.AvailableFields = nil
	} else {
		sort.Slice(fields, func(i, j int) bool { return fields[i].Label < fields[j].Label })
		b.state.AvailableFields = fields
	}
	b.mu.Unlock()

	if err != nil {
		log.Warn("loading model fields failed",
			zap.String("model", selected.Model), zap.Error(err))
		b.notifyError(err)
		b.fireStateChanged("model_changed")
		return nil
	}

	log.Info("model selected",
		zap.String("model", selected.Model), zap.Int("fields", len(fields)))
	b.fireStateChanged("model_changed")
	return nil
}

// clearResultsLocked drops execution results. Caller holds the lock.
func (b *Builder) clearResultsLocked() {
	b.state.ReportData = nil
	b.state.ReportCount = 0
	b.state.Executed = false
}

// --- field editing ---

// AddField appends the named available field to the selection. A name that is
// not available is a no-op; a name already selected produces a warning.
func (b *Builder) AddField(name string) {
	b.mu.Lock()
	desc, ok := b.availableFieldLocked(name)
	if !ok {
		b.mu.Unlock()
		return
	}
	if b.selectedIndexLocked(name) >= 0 {
		b.mu.Unlock()
		b.notifyWarning(fmt.Sprintf("Field %q is already in the report", desc.Label))
		return
	}
	b.state.Definition.SelectedFields = append(b.state.Definition.SelectedFields, model.FieldSpec{
		Name:        desc.Name,
		Label:       desc.Label,
		Type:        desc.Type,
		Visible:     true,
		Sequence:    len(b.state.Definition.SelectedFields) + 1,
		FormatType:  model.FormatTypeFor(desc.Type),
		Aggregation: model.DefaultAggregation,
	})
	b.mu.Unlock()
	b.fireStateChanged("field_added")
}

// RemoveField removes the named field from the selection; unknown names are a
// no-op. Sequences are recomputed.
func (b *Builder) RemoveField(name string) {
	b.mu.Lock()
	i := b.selectedIndexLocked(name)
	if i < 0 {
		b.mu.Unlock()
		return
	}
	fields := b.state.Definition.SelectedFields
	b.state.Definition.SelectedFields = append(fields[:i], fields[i+1:]...)
	b.resequenceLocked()
	b.mu.Unlock()
	b.fireStateChanged("field_removed")
}

// MoveField swaps the named field with its neighbor in the given direction
// ("up" or "down"). Boundary moves and unknown names are no-ops. Every
// field's sequence equals its 1-based position afterwards.
func (b *Builder) MoveField(name, direction string) {
	b.mu.Lock()
	i := b.selectedIndexLocked(name)
	if i < 0 {
		b.mu.Unlock()
		return
	}
	fields := b.state.Definition.SelectedFields
	j := i
	switch direction {
	case MoveUp:
		j = i - 1
	case MoveDown:
		j = i + 1
	}
	if j == i || j < 0 || j >= len(fields) {
		b.mu.Unlock()
		return
	}
	fields[i], fields[j] = fields[j], fields[i]
	b.resequenceLocked()
	b.mu.Unlock()
	b.fireStateChanged("field_moved")
}

func (b *Builder) availableFieldLocked(name string) (model.FieldDescriptor, bool) {
	for _, f := range b.state.AvailableFields {
		if f.Name == name {
			return f, true
		}
	}
	return model.FieldDescriptor{}, false
}

func (b *Builder) selectedIndexLocked(name string) int {
	for i, f := range b.state.Definition.SelectedFields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (b *Builder) resequenceLocked() {
	for i := range b.state.Definition.SelectedFields {
		b.state.Definition.SelectedFields[i].Sequence = i + 1
	}
}

// --- filter, sort, and group editing ---

// AddFilter appends an empty active filter row and returns it.
func (b *Builder) AddFilter() model.FilterSpec {
	f := model.FilterSpec{
		ID:       uuid.NewString(),
		Operator: model.OpEquals,
		Active:   true,
	}
	b.mu.Lock()
	b.state.Definition.Filters = append(b.state.Definition.Filters, f)
	b.mu.Unlock()
	b.fireStateChanged("filter_added")
	return f
}

// RemoveFilter removes the filter with the given id; unknown ids are a no-op.
func (b *Builder) RemoveFilter(id string) {
	b.mu.Lock()
	removed := false
	for i, f := range b.state.Definition.Filters {
		if f.ID == id {
			b.state.Definition.Filters = append(b.state.Definition.Filters[:i], b.state.Definition.Filters[i+1:]...)
			removed = true
			break
		}
	}
	b.mu.Unlock()
	if removed {
		b.fireStateChanged("filter_removed")
	}
}

// UpdateFilter applies a partial update to the filter with the given id.
// Changing the field re-derives the field type from the model's descriptors.
// Unknown ids are a no-op.
func (b *Builder) UpdateFilter(id string, patch FilterPatch) {
	b.mu.Lock()
	updated := false
	for i := range b.state.Definition.Filters {
		f := &b.state.Definition.Filters[i]
		if f.ID != id {
			continue
		}
		if patch.Field != nil {
			f.Field = *patch.Field
			f.FieldType = ""
			if desc, ok := b.availableFieldLocked(*patch.Field); ok {
				f.FieldType = desc.Type
			}
		}
		if patch.Operator != nil {
			f.Operator = *patch.Operator
		}
		if patch.Value != nil {
			f.Value = *patch.Value
		}
		if patch.Active != nil {
			f.Active = *patch.Active
		}
		updated = true
		break
	}
	b.mu.Unlock()
	if updated {
		b.fireStateChanged("filter_updated")
	}
}

// AddSort appends an ascending sort row with no field and returns it.
func (b *Builder) AddSort() model.SortSpec {
	s := model.SortSpec{ID: uuid.NewString(), Direction: "asc"}
	b.mu.Lock()
	b.state.Definition.Sorts = append(b.state.Definition.Sorts, s)
	b.mu.Unlock()
	b.fireStateChanged("sort_added")
	return s
}

// RemoveSort removes the sort with the given id; unknown ids are a no-op.
func (b *Builder) RemoveSort(id string) {
	b.mu.Lock()
	removed := false
	for i, s := range b.state.Definition.Sorts {
		if s.ID == id {
			b.state.Definition.Sorts = append(b.state.Definition.Sorts[:i], b.state.Definition.Sorts[i+1:]...)
			removed = true
			break
		}
	}
	b.mu.Unlock()
	if removed {
		b.fireStateChanged("sort_removed")
	}
}

// UpdateSort applies a partial update to the sort with the given id.
func (b *Builder) UpdateSort(id string, patch SortPatch) {
	b.mu.Lock()
	updated := false
	for i := range b.state.Definition.Sorts {
		s := &b.state.Definition.Sorts[i]
		if s.ID != id {
			continue
		}
		if patch.Field != nil {
			s.Field = *patch.Field
		}
		if patch.Direction != nil {
			s.Direction = *patch.Direction
		}
		updated = true
		break
	}
	b.mu.Unlock()
	if updated {
		b.fireStateChanged("sort_updated")
	}
}

// AddGroup appends a grouping row with no field and returns it.
func (b *Builder) AddGroup() model.GroupSpec {
	g := model.GroupSpec{ID: uuid.NewString()}
	b.mu.Lock()
	b.state.Definition.Groups = append(b.state.Definition.Groups, g)
	b.mu.Unlock()
	b.fireStateChanged("group_added")
	return g
}

// RemoveGroup removes the grouping with the given id; unknown ids are a no-op.
func (b *Builder) RemoveGroup(id string) {
	b.mu.Lock()
	removed := false
	for i, g := range b.state.Definition.Groups {
		if g.ID == id {
			b.state.Definition.Groups = append(b.state.Definition.Groups[:i], b.state.Definition.Groups[i+1:]...)
			removed = true
			break
		}
	}
	b.mu.Unlock()
	if removed {
		b.fireStateChanged("group_removed")
	}
}

// UpdateGroup applies a partial update to the grouping with the given id.
func (b *Builder) UpdateGroup(id string, patch GroupPatch) {
	b.mu.Lock()
	updated := false
	for i := range b.state.Definition.Groups {
		g := &b.state.Definition.Groups[i]
		if g.ID != id {
			continue
		}
		if patch.Field != nil {
			g.Field = *patch.Field
		}
		if patch.ShowTotals != nil {
			g.ShowTotals = *patch.ShowTotals
		}
		updated = true
		break
	}
	b.mu.Unlock()
	if updated {
		b.fireStateChanged("group_updated")
	}
}

// --- wizard steps ---

// GoToStep moves the wizard to step n (1..4).
func (b *Builder) GoToStep(n int) error {
	if n < StepFirst || n > StepLast {
		return model.NewBadRequestError(fmt.Sprintf("step must be between %d and %d", StepFirst, StepLast))
	}
	b.mu.Lock()
	b.state.CurrentStep = n
	b.mu.Unlock()
	b.fireStateChanged("step_changed")
	return nil
}

// --- validation ---

type validationIssue struct {
	Reason  string
	Message string
}

// Validate checks the definition and returns the accumulated human-readable
// problems, empty when the report is executable.
func (b *Builder) Validate() []string {
	b.mu.Lock()
	issues := validateDefinition(b.state.Definition)
	b.mu.Unlock()

	msgs := make([]string, 0, len(issues))
	for _, is := range issues {
		msgs = append(msgs, is.Message)
	}
	return msgs
}

// validateDefinition accumulates every problem rather than stopping at the
// first. An active filter with a field must carry a value unless the operator
// is "!=" (execution additionally lets "not in" through, matching the
// backend's skip rule).
func validateDefinition(def model.ReportDefinition) []validationIssue {
	var issues []validationIssue
	if def.SelectedModel == nil {
		issues = append(issues, validationIssue{
			Reason:  "model_missing",
			Message: "Please select a data model",
		})
	}
	if len(def.SelectedFields) == 0 {
		issues = append(issues, validationIssue{
			Reason:  "fields_missing",
			Message: "Please select at least one field to display",
		})
	}
	for i, f := range def.Filters {
		if !f.Active || f.Field == "" {
			continue
		}
		if f.Value == "" && f.Operator != model.OpNotEquals {
			issues = append(issues, validationIssue{
				Reason:  "filter_value_missing",
				Message: fmt.Sprintf("Filter %d (%s) requires a value", i+1, f.Field),
			})
		}
	}
	return issues
}

// ValidateFilters asks the backend to check the prepared filters against the
// selected model's schema.
func (b *Builder) ValidateFilters(ctx context.Context) ([]gateway.FilterValidation, error) {
	b.mu.Lock()
	def := model.CloneDefinition(b.state.Definition)
	b.mu.Unlock()

	if def.SelectedModel == nil {
		return nil, model.NewBadRequestError("no model selected")
	}
	rctx := model.RequestContextFrom(ctx)
	return b.gw.ValidateFilters(ctx, rctx, def.SelectedModel.Model, prepareFilters(def.Filters))
}

// --- execution ---

// Execute validates the definition, persists a temporary report, and runs it.
// On success the results land in state and the wizard advances to the results
// step. Every failure is caught and surfaced as a sticky error; the loading
// flag is always released.
func (b *Builder) Execute(ctx context.Context, opts ExecuteOptions) {
	b.runExecution(ctx, opts)
}

// runExecution is the shared execution path. It reports whether the run
// succeeded so the caching layer can decide what to store.
func (b *Builder) runExecution(ctx context.Context, opts ExecuteOptions) bool {
	log := observability.LoggerFrom(ctx, b.logger)
	rctx := model.RequestContextFrom(ctx)

	b.mu.Lock()
	issues := validateDefinition(b.state.Definition)
	if len(issues) > 0 {
		b.mu.Unlock()
		if b.metrics != nil {
			for _, is := range issues {
				b.metrics.RecordReportValidationFailure(is.Reason)
			}
		}
		msgs := make([]string, len(issues))
		for i, is := range issues {
			msgs[i] = is.Message
		}
		b.notify(model.NewError(strings.Join(msgs, "; ")))
		return false
	}

	def := model.CloneDefinition(b.state.Definition)
	b.mu.Unlock()

	modelName := def.SelectedModel.Model
	limit := 0
	if opts.Preview {
		limit = b.previewLimit
	}

	ctx, span := observability.StartSpan(ctx, "report.execute",
		observability.AttrModel.String(modelName),
		observability.AttrFieldCount.Int(len(def.SelectedFields)),
	)

	b.setLoading(true)
	defer b.setLoading(false)

	start := time.Now()
	reportID, err := b.gw.CreateReport(ctx, rctx, gateway.CreateReportRequest{
		Name:    fmt.Sprintf("temp_report_%d", time.Now().UnixMilli()),
		ModelID: def.SelectedModel.ID,
		Fields:  prepareFields(def.SelectedFields),
		Filters: prepareFiltersForSave(def.Filters),
	})
	if err != nil {
		observability.EndSpanWithError(span, err)
		b.recordExecution(modelName, "error", time.Since(start), 0)
		log.Warn("persisting temporary report failed",
			zap.String("model", modelName), zap.Error(err))
		b.notifyError(err)
		return false
	}

	rows, count, err := b.gw.ExecuteReport(ctx, rctx, reportID, prepareFilters(def.Filters), limit)
	duration := time.Since(start)
	if err != nil {
		observability.EndSpanWithError(span, err)
		b.recordExecution(modelName, "error", duration, 0)
		log.Warn("report execution failed",
			zap.String("model", modelName),
			zap.Int64("report_id", reportID),
			zap.Error(err))
		b.notifyError(err)
		return false
	}

	span.End()

	b.mu.Lock()
	b.state.ReportData = rows
	b.state.ReportCount = count
	b.state.Executed = true
	b.state.CurrentStep = StepLast
	b.mu.Unlock()

	b.recordExecution(modelName, "ok", duration, len(rows))
	log.Info("report executed",
		zap.String("model", modelName),
		zap.Int64("report_id", reportID),
		zap.Int("rows", len(rows)),
		zap.Int("count", count),
		zap.Duration("duration", duration))

	b.fireStateChanged("executed")
	b.notifySuccess(fmt.Sprintf("Report generated: %d records", count))
	return true
}

func (b *Builder) recordExecution(modelName, status string, d time.Duration, rows int) {
	if b.metrics != nil {
		b.metrics.RecordReportExecution(modelName, status, d, rows)
	}
}

// --- export and templates ---

// Export persists the current definition and returns the backend download URL
// for it. The format must be one the backend renders (xlsx, pdf). Requires a
// prior successful execution.
func (b *Builder) Export(ctx context.Context, format string) (string, error) {
	if !backendExportFormats[format] {
		return "", model.NewBadRequestError(fmt.Sprintf("unsupported export format %q", format))
	}

	b.mu.Lock()
	if !b.state.Executed || len(b.state.ReportData) == 0 {
		b.mu.Unlock()
		return "", model.NewNoReportDataError()
	}
	def := model.CloneDefinition(b.state.Definition)
	b.mu.Unlock()

	rctx := model.RequestContextFrom(ctx)
	log := observability.LoggerFrom(ctx, b.logger)

	reportID, err := b.gw.CreateReport(ctx, rctx, gateway.CreateReportRequest{
		Name:    fmt.Sprintf("temp_report_%d", time.Now().UnixMilli()),
		ModelID: def.SelectedModel.ID,
		Fields:  prepareFields(def.SelectedFields),
		Filters: prepareFiltersForSave(def.Filters),
	})
	if err != nil {
		return "", err
	}

	url, err := b.gw.DownloadURL(reportID, format, prepareFilters(def.Filters))
	if err != nil {
		return "", err
	}

	log.Info("export link built",
		zap.String("model", def.SelectedModel.Model),
		zap.Int64("report_id", reportID),
		zap.String("format", format))
	return url, nil
}

// SaveAsTemplate persists the current definition as a reusable template. An
// empty name aborts silently. Validation problems surface as one sticky
// error; gateway failures propagate.
func (b *Builder) SaveAsTemplate(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, nil
	}

	b.mu.Lock()
	issues := validateDefinition(b.state.Definition)
	def := model.CloneDefinition(b.state.Definition)
	b.mu.Unlock()

	if len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, is := range issues {
			msgs[i] = is.Message
		}
		b.notify(model.NewError(strings.Join(msgs, "; ")))
		return 0, nil
	}

	rctx := model.RequestContextFrom(ctx)
	id, err := b.gw.CreateReport(ctx, rctx, gateway.CreateReportRequest{
		Name:       name,
		ModelID:    def.SelectedModel.ID,
		Fields:     prepareFields(def.SelectedFields),
		Filters:    prepareFiltersForSave(def.Filters),
		IsTemplate: true,
	})
	if err != nil {
		return 0, err
	}

	observability.LoggerFrom(ctx, b.logger).Info("report template saved",
		zap.String("name", name),
		zap.Int64("template_id", id))
	b.notifySuccess(fmt.Sprintf("Template %q saved", name))
	return id, nil
}

// --- persistence and execution transforms ---

// prepareFields turns the selection into persistence tuples with the sequence
// recomputed from position.
func prepareFields(fields []model.FieldSpec) []model.FieldTuple {
	out := make([]model.FieldTuple, 0, len(fields))
	for i, f := range fields {
		out = append(out, model.FieldTuple{
			Name:        f.Name,
			Label:       f.Label,
			Type:        f.Type,
			Sequence:    i + 1,
			Visible:     f.Visible,
			FormatType:  f.FormatType,
			Aggregation: f.Aggregation,
		})
	}
	return out
}

// prepareFilters selects the filters sent at execution time: active, with a
// field, and either a non-empty value or an operator that works without one.
func prepareFilters(filters []model.FilterSpec) []model.PreparedFilter {
	out := make([]model.PreparedFilter, 0, len(filters))
	for _, f := range filters {
		if !f.Active || f.Field == "" {
			continue
		}
		if f.Value == "" && f.Operator != model.OpNotEquals && f.Operator != model.OpNotIn {
			continue
		}
		out = append(out, model.PreparedFilter{
			Field:    f.Field,
			Operator: f.Operator,
			Value:    f.Value,
		})
	}
	return out
}

// prepareFiltersForSave keeps every filter with a field regardless of its
// active flag, tagged with a generated display name and sequence.
func prepareFiltersForSave(filters []model.FilterSpec) []model.FilterTuple {
	out := make([]model.FilterTuple, 0, len(filters))
	for _, f := range filters {
		if f.Field == "" {
			continue
		}
		n := len(out) + 1
		out = append(out, model.FilterTuple{
			Name:     fmt.Sprintf("Filter %d", n),
			Field:    f.Field,
			Operator: f.Operator,
			Value:    f.Value,
			Active:   f.Active,
			Sequence: n,
		})
	}
	return out
}

package builder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calade/reportdeck/internal/gateway"
	"github.com/calade/reportdeck/internal/observability"
	"github.com/calade/reportdeck/model"
)

// QuickFilter is one inline filter of a quick report request.
type QuickFilter struct {
	Field    string `json:"field"`
	Operator string `json:"operator,omitempty"`
	Value    string `json:"value,omitempty"`
}

// QuickReportRequest describes a one-shot report: a model, the columns to
// show, and optional filters and row limit.
type QuickReportRequest struct {
	Model   string        `json:"model"`
	Fields  []string      `json:"fields"`
	Filters []QuickFilter `json:"filters,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

// QuickReportResult carries the executed rows plus the resolved metadata.
type QuickReportResult struct {
	ReportID   int64                 `json:"report_id"`
	ReportName string                `json:"report_name"`
	Model      model.ModelDescriptor `json:"model"`
	Fields     []model.FieldSpec     `json:"fields"`
	Rows       []model.ReportRow     `json:"rows"`
	Count      int                   `json:"count"`
}

// QuickRunner executes reports in one shot, without a session. Each run
// resolves the model, builds a transient definition with derived format
// types, and executes it through the gateway.
type QuickRunner struct {
	gw      Gateway
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewQuickRunner creates a runner. logger and metrics may be nil.
func NewQuickRunner(gw Gateway, logger *zap.Logger, metrics *observability.Metrics) *QuickRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuickRunner{gw: gw, logger: logger, metrics: metrics}
}

// Run executes the request. Unlike session execution, failures return the
// error to the caller: there is no state to attach notifications to.
func (q *QuickRunner) Run(ctx context.Context, req QuickReportRequest) (*QuickReportResult, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, model.NewBadRequestError("model is required")
	}
	if len(req.Fields) == 0 {
		return nil, model.NewBadRequestError("at least one field is required")
	}

	log := observability.LoggerFrom(ctx, q.logger)
	rctx := model.RequestContextFrom(ctx)

	ctx, span := observability.StartSpan(ctx, "report.quick",
		observability.AttrModel.String(req.Model),
		observability.AttrFieldCount.Int(len(req.Fields)),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	models, err := q.gw.ListModels(ctx, rctx)
	if err != nil {
		return nil, err
	}
	var desc *model.ModelDescriptor
	for i := range models {
		if models[i].Model == req.Model {
			desc = &models[i]
			break
		}
	}
	if desc == nil {
		err = model.NewModelNotFoundError(fmt.Sprintf("model %s is not available", req.Model))
		return nil, err
	}

	available, err := q.gw.ModelFields(ctx, rctx, desc.Model)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]model.FieldDescriptor, len(available))
	for _, fd := range available {
		byName[fd.Name] = fd
	}

	fields := make([]model.FieldSpec, 0, len(req.Fields))
	var unknown []string
	for i, name := range req.Fields {
		fd, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		fields = append(fields, model.FieldSpec{
			Name:        fd.Name,
			Label:       fd.Label,
			Type:        fd.Type,
			Visible:     true,
			Sequence:    i + 1,
			FormatType:  model.FormatTypeFor(fd.Type),
			Aggregation: model.DefaultAggregation,
		})
	}
	if len(unknown) > 0 {
		err = model.NewBadRequestError(fmt.Sprintf("unknown fields for %s: %s", req.Model, strings.Join(unknown, ", ")))
		return nil, err
	}

	filters := make([]model.FilterSpec, 0, len(req.Filters))
	for _, f := range req.Filters {
		if strings.TrimSpace(f.Field) == "" {
			continue
		}
		op := f.Operator
		if op == "" {
			op = model.OpEquals
		}
		fieldType := ""
		if fd, ok := byName[f.Field]; ok {
			fieldType = fd.Type
		}
		filters = append(filters, model.FilterSpec{
			ID:        uuid.NewString(),
			Field:     f.Field,
			FieldType: fieldType,
			Operator:  op,
			Value:     f.Value,
			Active:    true,
		})
	}

	name := fmt.Sprintf("Quick report: %s", desc.Name)
	reportID, err := q.gw.CreateReport(ctx, rctx, gateway.CreateReportRequest{
		Name:    name,
		ModelID: desc.ID,
		Fields:  prepareFields(fields),
		Filters: prepareFiltersForSave(filters),
	})
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPreviewRowLimit
	}

	start := time.Now()
	rows, count, err := q.gw.ExecuteReport(ctx, rctx, reportID, prepareFilters(filters), limit)
	if q.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		q.metrics.RecordReportExecution(desc.Model, status, time.Since(start), len(rows))
	}
	if err != nil {
		return nil, err
	}

	log.Info("quick report executed",
		zap.String("model", desc.Model),
		zap.Int64("report_id", reportID),
		zap.Int("rows", len(rows)),
		zap.Int("count", count),
	)

	return &QuickReportResult{
		ReportID:   reportID,
		ReportName: name,
		Model:      *desc,
		Fields:     fields,
		Rows:       rows,
		Count:      count,
	}, nil
}

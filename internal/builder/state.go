package builder

import (
	"github.com/calade/reportdeck/model"
)

// Wizard step bounds. Step 4 (results) is also entered automatically after a
// successful execution.
const (
	StepFirst = 1
	StepLast  = 4
)

// State is the complete observable state of one report-builder session. The
// Builder guards the live copy; State() hands out deep copies so callers can
// never mutate builder internals through a read.
type State struct {
	AvailableModels []model.ModelDescriptor `json:"available_models"`
	AvailableFields []model.FieldDescriptor `json:"available_fields"`
	Definition      model.ReportDefinition  `json:"definition"`
	CurrentStep     int                     `json:"current_step"`
	Loading         bool                    `json:"loading"`
	ReportData      []model.ReportRow       `json:"report_data,omitempty"`
	ReportCount     int                     `json:"report_count"`
	Executed        bool                    `json:"executed"`
	AdvancedMode    bool                    `json:"advanced_mode"`
}

// clone returns a deep copy of the state.
func (s State) clone() State {
	out := s
	out.AvailableModels = append([]model.ModelDescriptor(nil), s.AvailableModels...)
	out.AvailableFields = append([]model.FieldDescriptor(nil), s.AvailableFields...)
	out.Definition = model.CloneDefinition(s.Definition)
	out.ReportData = model.CloneRows(s.ReportData)
	return out
}

// snapshot captures the four mutable collections for history entries.
func (s State) snapshot() model.Snapshot {
	return model.Snapshot{
		SelectedFields: model.CloneFields(s.Definition.SelectedFields),
		Filters:        model.CloneFilters(s.Definition.Filters),
		Groups:         model.CloneGroups(s.Definition.Groups),
		Sorts:          model.CloneSorts(s.Definition.Sorts),
	}
}

// Observer receives builder lifecycle events. StateChanged fires after every
// mutation with a short event name; Notified fires for every user-facing
// notification. Observers are called synchronously in registration order,
// outside the builder's lock.
type Observer interface {
	StateChanged(event string)
	Notified(n model.Notification)
}

// ExecuteOptions controls one report execution.
type ExecuteOptions struct {
	// Preview caps the result at the configured preview row limit. A
	// non-preview run is unlimited.
	Preview bool
}

// FilterPatch carries partial updates for one filter row. Nil fields are left
// untouched.
type FilterPatch struct {
	Field    *string `json:"field,omitempty"`
	Operator *string `json:"operator,omitempty"`
	Value    *string `json:"value,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

// SortPatch carries partial updates for one sort row.
type SortPatch struct {
	Field     *string `json:"field,omitempty"`
	Direction *string `json:"direction,omitempty"`
}

// GroupPatch carries partial updates for one grouping row.
type GroupPatch struct {
	Field      *string `json:"field,omitempty"`
	ShowTotals *bool   `json:"show_totals,omitempty"`
}

// Move directions for MoveField.
const (
	MoveUp   = "up"
	MoveDown = "down"
)

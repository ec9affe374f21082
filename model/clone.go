package model

// Snapshot is a point-in-time copy of the four mutable report collections.
// Snapshots are fully independent of the live state they were taken from.
type Snapshot struct {
	SelectedFields []FieldSpec  `json:"selected_fields"`
	Filters        []FilterSpec `json:"filters"`
	Groups         []GroupSpec  `json:"groups"`
	Sorts          []SortSpec   `json:"sorts"`
}

// CloneFields returns a deep copy of the field list.
func CloneFields(fields []FieldSpec) []FieldSpec {
	if fields == nil {
		return nil
	}
	out := make([]FieldSpec, len(fields))
	copy(out, fields)
	return out
}

// CloneFilters returns a deep copy of the filter list.
func CloneFilters(filters []FilterSpec) []FilterSpec {
	if filters == nil {
		return nil
	}
	out := make([]FilterSpec, len(filters))
	copy(out, filters)
	return out
}

// CloneSorts returns a deep copy of the sort list.
func CloneSorts(sorts []SortSpec) []SortSpec {
	if sorts == nil {
		return nil
	}
	out := make([]SortSpec, len(sorts))
	copy(out, sorts)
	return out
}

// CloneGroups returns a deep copy of the group list.
func CloneGroups(groups []GroupSpec) []GroupSpec {
	if groups == nil {
		return nil
	}
	out := make([]GroupSpec, len(groups))
	copy(out, groups)
	return out
}

// Clone returns a deep copy of the snapshot. Mutating the clone never
// affects the original.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		SelectedFields: CloneFields(s.SelectedFields),
		Filters:        CloneFilters(s.Filters),
		Groups:         CloneGroups(s.Groups),
		Sorts:          CloneSorts(s.Sorts),
	}
}

// CloneRows returns a deep copy of report rows, copying each row map and any
// nested slices of maps one level down.
func CloneRows(rows []ReportRow) []ReportRow {
	if rows == nil {
		return nil
	}
	out := make([]ReportRow, len(rows))
	for i, row := range rows {
		out[i] = cloneRow(row)
	}
	return out
}

func cloneRow(row ReportRow) ReportRow {
	if row == nil {
		return nil
	}
	c := make(ReportRow, len(row))
	for k, v := range row {
		switch tv := v.(type) {
		case map[string]any:
			inner := make(map[string]any, len(tv))
			for ik, iv := range tv {
				inner[ik] = iv
			}
			c[k] = inner
		case []any:
			inner := make([]any, len(tv))
			copy(inner, tv)
			c[k] = inner
		default:
			c[k] = v
		}
	}
	return c
}

// CloneDefinition returns a deep copy of the report definition.
func CloneDefinition(def ReportDefinition) ReportDefinition {
	out := ReportDefinition{
		SelectedFields: CloneFields(def.SelectedFields),
		Filters:        CloneFilters(def.Filters),
		Sorts:          CloneSorts(def.Sorts),
		Groups:         CloneGroups(def.Groups),
	}
	if def.SelectedModel != nil {
		m := *def.SelectedModel
		out.SelectedModel = &m
	}
	return out
}

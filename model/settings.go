package model

import "time"

// SettingsVersion is the interchange format version written on export.
const SettingsVersion = "1.0"

// SettingsMetadata describes when and under which format version a settings
// document was produced.
type SettingsMetadata struct {
	ExportedAt time.Time `json:"exported_at"`
	Version    string    `json:"version"`
}

// SettingsDocument is the JSON interchange shape for report settings.
// Model and Fields are mandatory on import; the remaining sections default to
// empty when absent.
type SettingsDocument struct {
	Model    string           `json:"model"`
	Fields   []FieldSpec      `json:"fields"`
	Filters  []FilterSpec     `json:"filters,omitempty"`
	Groups   []GroupSpec      `json:"groups,omitempty"`
	Sorts    []SortSpec       `json:"sorts,omitempty"`
	Metadata SettingsMetadata `json:"metadata"`
}

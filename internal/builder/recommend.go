package builder

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// recommendedFields maps well-known model technical names to their canonical
// report columns. Models outside this table simply have no recommendations.
var recommendedFields = map[string][]string{
	"res.partner":      {"name", "email", "phone", "city", "country_id"},
	"sale.order":       {"name", "partner_id", "date_order", "amount_total", "state"},
	"account.move":     {"name", "partner_id", "invoice_date", "amount_total", "state"},
	"product.template": {"name", "list_price", "standard_price", "categ_id", "type"},
	"stock.picking":    {"name", "partner_id", "scheduled_date", "state", "origin"},
	"hr.employee":      {"name", "job_id", "department_id", "work_email", "work_phone"},
}

// LoadRecommendations reads a YAML file mapping model technical names to
// column lists and merges it over the builtin table. A model named in the
// file replaces its builtin list entirely; models it omits keep theirs.
func LoadRecommendations(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recommendations: reading %s: %w", path, err)
	}
	var override map[string][]string
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("recommendations: parsing %s: %w", path, err)
	}

	merged := make(map[string][]string, len(recommendedFields)+len(override))
	for name, cols := range recommendedFields {
		merged[name] = append([]string(nil), cols...)
	}
	for name, cols := range override {
		merged[name] = append([]string(nil), cols...)
	}
	return merged, nil
}

// recommendationsFor intersects the canonical columns of modelName with the
// fields that are available and not yet selected, preserving canonical order.
// A nil table means the builtin one; an unknown model yields nil.
func recommendationsFor(table map[string][]string, modelName string, available []string, selected []string) []string {
	if table == nil {
		table = recommendedFields
	}
	canonical, ok := table[modelName]
	if !ok {
		return nil
	}

	availSet := make(map[string]bool, len(available))
	for _, name := range available {
		availSet[name] = true
	}
	selSet := make(map[string]bool, len(selected))
	for _, name := range selected {
		selSet[name] = true
	}

	var out []string
	for _, name := range canonical {
		if availSet[name] && !selSet[name] {
			out = append(out, name)
		}
	}
	return out
}

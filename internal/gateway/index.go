// Package gateway talks to the ORM gateway fronting the ERP backend. It
// resolves operation routing from the gateway's OpenAPI document and wraps
// every call with circuit breaker and retry protection.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Operation IDs the client depends on. All of them must be present in the
// gateway's OpenAPI document.
const (
	OpListModels      = "listModels"
	OpGetModelFields  = "getModelFields"
	OpExecuteReport   = "executeReport"
	OpCreateReport    = "createReport"
	OpValidateFilters = "validateFilters"
	OpExportDownload  = "exportDownload"
)

// RequiredOperations returns the operation IDs the client needs at startup.
func RequiredOperations() []string {
	return []string{
		OpListModels,
		OpGetModelFields,
		OpExecuteReport,
		OpCreateReport,
		OpValidateFilters,
		OpExportDownload,
	}
}

// IndexedOperation holds a resolved OpenAPI operation with its context.
type IndexedOperation struct {
	OperationID  string
	Method       string
	PathTemplate string
	Parameters   []*openapi3.Parameter
	BaseURL      string
}

// Index is an in-memory index of the gateway's operations keyed by operationId.
type Index struct {
	operations map[string]IndexedOperation
	ids        []string
}

// NewIndex creates an empty operation index.
func NewIndex() *Index {
	return &Index{operations: make(map[string]IndexedOperation)}
}

// Load parses the OpenAPI spec at specPath and indexes all operations.
// baseURL overrides the document's own servers entry when non-empty.
func (idx *Index) Load(specPath, baseURL string) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return fmt.Errorf("gateway: loading spec %s: %w", specPath, err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return fmt.Errorf("gateway: validating spec %s: %w", specPath, err)
	}

	if baseURL == "" && len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}

	for path, pathItem := range doc.Paths.Map() {
		for method, op := range pathItem.Operations() {
			if op.OperationID == "" {
				continue
			}

			// Merge path-level and operation-level parameters.
			params := make([]*openapi3.Parameter, 0)
			for _, ref := range pathItem.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}
			for _, ref := range op.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}

			idx.operations[op.OperationID] = IndexedOperation{
				OperationID:  op.OperationID,
				Method:       method,
				PathTemplate: path,
				Parameters:   params,
				BaseURL:      baseURL,
			}
			idx.ids = append(idx.ids, op.OperationID)
		}
	}

	return nil
}

// GetOperation returns the indexed operation for the given operation ID.
func (idx *Index) GetOperation(operationID string) (IndexedOperation, bool) {
	op, ok := idx.operations[operationID]
	return op, ok
}

// AllOperationIDs returns all indexed operation IDs, sorted.
func (idx *Index) AllOperationIDs() []string {
	ids := make([]string, len(idx.ids))
	copy(ids, idx.ids)
	sort.Strings(ids)
	return ids
}

// Len returns the number of indexed operations.
func (idx *Index) Len() int {
	return len(idx.operations)
}

// Verify checks that every required operation ID is indexed. A missing ID is
// a configuration error: the spec file does not match what the client needs.
func (idx *Index) Verify(required ...string) error {
	var missing []string
	for _, id := range required {
		if _, ok := idx.operations[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("gateway: spec is missing operations: %s", strings.Join(missing, ", "))
	}
	return nil
}

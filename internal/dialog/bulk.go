// Package dialog provides the headless counterparts of the report builder's
// modal dialogs: small state machines holding candidates, a working
// selection, and a confirm callback. They never mutate the opener's state;
// the callback receives the outcome on confirm and nothing on cancel.
package dialog

import (
	"strings"
	"sync"

	"github.com/calade/reportdeck/model"
)

// BulkFieldPicker is a searchable multi-select over a fixed candidate list.
// Candidates are snapshotted at construction; the picker hands out copies.
type BulkFieldPicker struct {
	mu         sync.Mutex
	candidates []model.FieldDescriptor
	query      string
	selected   map[string]bool
	open       bool
	onConfirm  func(names []string)
}

// NewBulkFieldPicker opens a picker over candidates. onConfirm receives the
// selected technical names, in candidate order, when the user confirms.
func NewBulkFieldPicker(candidates []model.FieldDescriptor, onConfirm func(names []string)) *BulkFieldPicker {
	return &BulkFieldPicker{
		candidates: append([]model.FieldDescriptor(nil), candidates...),
		selected:   make(map[string]bool),
		open:       true,
		onConfirm:  onConfirm,
	}
}

// Open reports whether the picker is still open.
func (p *BulkFieldPicker) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// SetQuery replaces the search query. Matching is a case-insensitive
// substring test against a candidate's label or technical name.
func (p *BulkFieldPicker) SetQuery(q string) {
	p.mu.Lock()
	p.query = q
	p.mu.Unlock()
}

// Query returns the current search query.
func (p *BulkFieldPicker) Query() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Candidates returns a copy of the full candidate list.
func (p *BulkFieldPicker) Candidates() []model.FieldDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.FieldDescriptor(nil), p.candidates...)
}

// Filtered returns the candidates matching the current query, in candidate
// order.
func (p *BulkFieldPicker) Filtered() []model.FieldDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filteredLocked()
}

func (p *BulkFieldPicker) filteredLocked() []model.FieldDescriptor {
	if p.query == "" {
		return append([]model.FieldDescriptor(nil), p.candidates...)
	}
	q := strings.ToLower(p.query)
	var out []model.FieldDescriptor
	for _, c := range p.candidates {
		if strings.Contains(strings.ToLower(c.Label), q) || strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}

// Toggle flips the selection state of the named candidate. Names outside the
// candidate list are a no-op.
func (p *BulkFieldPicker) Toggle(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isCandidateLocked(name) {
		return
	}
	if p.selected[name] {
		delete(p.selected, name)
	} else {
		p.selected[name] = true
	}
}

// SetAll replaces the selection with exactly the currently filtered set when
// on is true, and clears the selection when off. Candidates hidden by the
// query are never selected by it.
func (p *BulkFieldPicker) SetAll(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = make(map[string]bool)
	if !on {
		return
	}
	for _, c := range p.filteredLocked() {
		p.selected[c.Name] = true
	}
}

// Selected returns the selected technical names in candidate order.
func (p *BulkFieldPicker) Selected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectedLocked()
}

func (p *BulkFieldPicker) selectedLocked() []string {
	var out []string
	for _, c := range p.candidates {
		if p.selected[c.Name] {
			out = append(out, c.Name)
		}
	}
	return out
}

// Confirm fires the opener's callback with the current selection and closes
// the picker. Confirming a closed picker is a no-op.
func (p *BulkFieldPicker) Confirm() {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return
	}
	p.open = false
	names := p.selectedLocked()
	cb := p.onConfirm
	p.mu.Unlock()

	if cb != nil {
		cb(names)
	}
}

// Cancel closes the picker without firing the callback.
func (p *BulkFieldPicker) Cancel() {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
}

func (p *BulkFieldPicker) isCandidateLocked(name string) bool {
	for _, c := range p.candidates {
		if c.Name == name {
			return true
		}
	}
	return false
}

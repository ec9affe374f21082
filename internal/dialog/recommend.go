package dialog

import (
	"sync"

	"github.com/calade/reportdeck/model"
)

// RecommendationPicker reviews a set of recommended fields before they are
// added to the report. Every recommendation starts accepted; the user removes
// and restores entries, then confirms the remainder.
type RecommendationPicker struct {
	mu              sync.Mutex
	recommendations []model.FieldDescriptor
	accepted        map[string]bool
	open            bool
	onConfirm       func(names []string)
}

// NewRecommendationPicker opens a picker pre-seeded with every supplied
// recommendation accepted. onConfirm receives the accepted technical names,
// in recommendation order, when the user confirms.
func NewRecommendationPicker(recommendations []model.FieldDescriptor, onConfirm func(names []string)) *RecommendationPicker {
	p := &RecommendationPicker{
		recommendations: append([]model.FieldDescriptor(nil), recommendations...),
		accepted:        make(map[string]bool, len(recommendations)),
		open:            true,
		onConfirm:       onConfirm,
	}
	for _, r := range p.recommendations {
		p.accepted[r.Name] = true
	}
	return p
}

// Open reports whether the picker is still open.
func (p *RecommendationPicker) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Recommendations returns a copy of the full recommendation list.
func (p *RecommendationPicker) Recommendations() []model.FieldDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.FieldDescriptor(nil), p.recommendations...)
}

// Remove drops the named recommendation from the accepted set. Names outside
// the recommendation list are a no-op.
func (p *RecommendationPicker) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRecommendedLocked(name) {
		delete(p.accepted, name)
	}
}

// Restore returns the named recommendation to the accepted set. Only names
// from the original recommendation list can be restored.
func (p *RecommendationPicker) Restore(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRecommendedLocked(name) {
		p.accepted[name] = true
	}
}

// Accepted returns the accepted technical names in recommendation order.
func (p *RecommendationPicker) Accepted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acceptedLocked()
}

func (p *RecommendationPicker) acceptedLocked() []string {
	var out []string
	for _, r := range p.recommendations {
		if p.accepted[r.Name] {
			out = append(out, r.Name)
		}
	}
	return out
}

// Confirm fires the opener's callback with the accepted set and closes the
// picker. Confirming a closed picker is a no-op.
func (p *RecommendationPicker) Confirm() {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return
	}
	p.open = false
	names := p.acceptedLocked()
	cb := p.onConfirm
	p.mu.Unlock()

	if cb != nil {
		cb(names)
	}
}

// Cancel closes the picker without firing the callback.
func (p *RecommendationPicker) Cancel() {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
}

func (p *RecommendationPicker) isRecommendedLocked(name string) bool {
	for _, r := range p.recommendations {
		if r.Name == name {
			return true
		}
	}
	return false
}

package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/internal/dialog"
	"github.com/calade/reportdeck/internal/session"
	"github.com/calade/reportdeck/model"
)

// pickerFieldView is one selectable row of an open picker.
type pickerFieldView struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Selected bool   `json:"selected"`
}

// bulkPickerView is the wire shape of an open bulk-add picker: the filtered
// candidate rows plus enough counts to render "n of m selected".
type bulkPickerView struct {
	Open          bool              `json:"open"`
	Query         string            `json:"query"`
	Fields        []pickerFieldView `json:"fields"`
	SelectedCount int               `json:"selected_count"`
	Total         int               `json:"total"`
}

func bulkView(p *dialog.BulkFieldPicker) bulkPickerView {
	selected := make(map[string]bool)
	for _, name := range p.Selected() {
		selected[name] = true
	}
	filtered := p.Filtered()
	fields := make([]pickerFieldView, 0, len(filtered))
	for _, f := range filtered {
		fields = append(fields, pickerFieldView{
			Name:     f.Name,
			Label:    f.Label,
			Type:     f.Type,
			Selected: selected[f.Name],
		})
	}
	return bulkPickerView{
		Open:          p.Open(),
		Query:         p.Query(),
		Fields:        fields,
		SelectedCount: len(selected),
		Total:         len(p.Candidates()),
	}
}

// recommendPickerView is the wire shape of an open recommendation picker.
// Selected marks the recommendations still accepted.
type recommendPickerView struct {
	Open   bool              `json:"open"`
	Fields []pickerFieldView `json:"fields"`
}

func recommendView(p *dialog.RecommendationPicker) recommendPickerView {
	accepted := make(map[string]bool)
	for _, name := range p.Accepted() {
		accepted[name] = true
	}
	recs := p.Recommendations()
	fields := make([]pickerFieldView, 0, len(recs))
	for _, f := range recs {
		fields = append(fields, pickerFieldView{
			Name:     f.Name,
			Label:    f.Label,
			Type:     f.Type,
			Selected: accepted[f.Name],
		})
	}
	return recommendPickerView{Open: p.Open(), Fields: fields}
}

// openBulkPicker returns the session's open bulk picker, writing a conflict
// error when none is open.
func openBulkPicker(deps Dependencies, w http.ResponseWriter, r *http.Request) (*session.Session, *dialog.BulkFieldPicker, bool) {
	sess, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		WriteError(w, r, err)
		return nil, nil, false
	}
	p := sess.BulkPicker()
	if p == nil || !p.Open() {
		WriteError(w, r, model.NewConflictError("no bulk field picker is open"))
		return nil, nil, false
	}
	return sess, p, true
}

func openRecommendPicker(deps Dependencies, w http.ResponseWriter, r *http.Request) (*session.Session, *dialog.RecommendationPicker, bool) {
	sess, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		WriteError(w, r, err)
		return nil, nil, false
	}
	p := sess.RecommendationPicker()
	if p == nil || !p.Open() {
		WriteError(w, r, model.NewConflictError("no recommendation picker is open"))
		return nil, nil, false
	}
	return sess, p, true
}

func handleBulkOpen(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var p *dialog.BulkFieldPicker
		sess, notes, err := deps.Sessions.Do(r.Context(), id, false, func(ext *builder.Extension) error {
			p = ext.OpenBulkAdd()
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if p == nil {
			WriteData(w, http.StatusOK, map[string]any{"picker": nil}, notes)
			return
		}
		sess.SetBulkPicker(p)
		WriteData(w, http.StatusOK, map[string]any{"picker": bulkView(p)}, notes)
	}
}

func handleBulkQuery(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		_, p, ok := openBulkPicker(deps, w, r)
		if !ok {
			return
		}
		p.SetQuery(body.Query)
		WriteJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"picker": bulkView(p)}})
	}
}

func handleBulkToggle(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.Name == "" {
			WriteError(w, r, model.NewBadRequestError("field name is required"))
			return
		}

		_, p, ok := openBulkPicker(deps, w, r)
		if !ok {
			return
		}
		p.Toggle(body.Name)
		WriteJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"picker": bulkView(p)}})
	}
}

func handleBulkSelectAll(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Selected bool `json:"selected"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		_, p, ok := openBulkPicker(deps, w, r)
		if !ok {
			return
		}
		p.SetAll(body.Selected)
		WriteJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"picker": bulkView(p)}})
	}
}

func handleBulkConfirm(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		sess, p, ok := openBulkPicker(deps, w, r)
		if !ok {
			return
		}

		var st builder.State
		_, notes, err := deps.Sessions.Do(r.Context(), id, true, func(ext *builder.Extension) error {
			p.Confirm()
			st = ext.Base().State()
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		sess.SetBulkPicker(nil)
		WriteData(w, http.StatusOK, sessionEnvelope{
			SessionID: sess.ID,
			CreatedAt: sess.CreatedAt(),
			State:     st,
		}, notes)
	}
}

func handleBulkCancel(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, p, ok := openBulkPicker(deps, w, r)
		if !ok {
			return
		}
		p.Cancel()
		sess.SetBulkPicker(nil)
		WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func handleRecommendOpen(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var p *dialog.RecommendationPicker
		sess, notes, err := deps.Sessions.Do(r.Context(), id, false, func(ext *builder.Extension) error {
			p = ext.OpenRecommendations()
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if p == nil {
			WriteData(w, http.StatusOK, map[string]any{"picker": nil}, notes)
			return
		}
		sess.SetRecommendationPicker(p)
		WriteData(w, http.StatusOK, map[string]any{"picker": recommendView(p)}, notes)
	}
}

func handleRecommendToggle(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.Name == "" {
			WriteError(w, r, model.NewBadRequestError("field name is required"))
			return
		}

		_, p, ok := openRecommendPicker(deps, w, r)
		if !ok {
			return
		}
		accepted := false
		for _, name := range p.Accepted() {
			if name == body.Name {
				accepted = true
				break
			}
		}
		if accepted {
			p.Remove(body.Name)
		} else {
			p.Restore(body.Name)
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"picker": recommendView(p)}})
	}
}

func handleRecommendSelectAll(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Selected bool `json:"selected"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		_, p, ok := openRecommendPicker(deps, w, r)
		if !ok {
			return
		}
		for _, f := range p.Recommendations() {
			if body.Selected {
				p.Restore(f.Name)
			} else {
				p.Remove(f.Name)
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"picker": recommendView(p)}})
	}
}

func handleRecommendConfirm(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		sess, p, ok := openRecommendPicker(deps, w, r)
		if !ok {
			return
		}

		var st builder.State
		_, notes, err := deps.Sessions.Do(r.Context(), id, true, func(ext *builder.Extension) error {
			p.Confirm()
			st = ext.Base().State()
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		sess.SetRecommendationPicker(nil)
		WriteData(w, http.StatusOK, sessionEnvelope{
			SessionID: sess.ID,
			CreatedAt: sess.CreatedAt(),
			State:     st,
		}, notes)
	}
}

func handleRecommendCancel(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, p, ok := openRecommendPicker(deps, w, r)
		if !ok {
			return
		}
		p.Cancel()
		sess.SetRecommendationPicker(nil)
		WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/model"
)

func handleSetModel(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ModelID int64 `json:"model_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			return ext.Base().SetModel(r.Context(), body.ModelID)
		})
	}
}

func handleAddField(deps Dependencies) http.HandlerFunc {
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

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Base().AddField(body.Name)
			return nil
		})
	}
}

func handleRemoveField(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Base().RemoveField(name)
			return nil
		})
	}
}

func handleMoveField(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var body struct {
			Direction string `json:"direction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.Direction != builder.MoveUp && body.Direction != builder.MoveDown {
			WriteError(w, r, model.NewBadRequestError("direction must be up or down"))
			return
		}

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Base().MoveField(name, body.Direction)
			return nil
		})
	}
}

func handleDuplicateField(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.DuplicateField(name)
			return nil
		})
	}
}

func handleAddFilter(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var spec model.FilterSpec
		_, notes, err := deps.Sessions.Do(r.Context(), id, true, func(ext *builder.Extension) error {
			spec = ext.Base().AddFilter()
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusCreated, map[string]any{"filter": spec}, notes)
	}
}

func handleUpdateFilter(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filterID := chi.URLParam(r, "filterID")
		var patch builder.FilterPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Base().UpdateFilter(filterID, patch)
			return nil
		})
	}
}

func handleRemoveFilter(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filterID := chi.URLParam(r, "filterID")
		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Base().RemoveFilter(filterID)
			return nil
		})
	}
}

func handleAddSort(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var spec model.SortSpec
		_, notes, err := deps.Sessions.Do(r.Context(), id, true, func(ext *builder.Extension) error {
			spec = ext.Base().AddSort()
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusCreated, map[string]any{"sort": spec}, notes)
	}
}

func handleUpdateSort(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sortID := chi.URLParam(r, "sortID")
		var patch builder.SortPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Base().UpdateSort(sortID, patch)
			return nil
		})
	}
}

func handleRemoveSort(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sortID := chi.URLParam(r, "sortID")
		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Base().RemoveSort(sortID)
			return nil
		})
	}
}

func handleAddGroup(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var spec model.GroupSpec
		_, notes, err := deps.Sessions.Do(r.Context(), id, true, func(ext *builder.Extension) error {
			spec = ext.Base().AddGroup()
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusCreated, map[string]any{"group": spec}, notes)
	}
}

func handleUpdateGroup(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		var patch builder.GroupPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Base().UpdateGroup(groupID, patch)
			return nil
		})
	}
}

func handleRemoveGroup(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Base().RemoveGroup(groupID)
			return nil
		})
	}
}

func handleGoToStep(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Step int `json:"step"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			return ext.Base().GoToStep(body.Step)
		})
	}
}

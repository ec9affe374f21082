package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/model"
)

func handleUndo(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Undo()
			return nil
		})
	}
}

func handleRedo(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.Redo()
			return nil
		})
	}
}

func handleHistory(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var entries []model.HistoryEntry
		_, _, err := deps.Sessions.Do(r.Context(), id, false, func(ext *builder.Extension) error {
			entries = ext.History()
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if entries == nil {
			entries = []model.HistoryEntry{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"history": entries}})
	}
}

func handleAdvancedMode(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.SetAdvancedMode(body.Enabled)
			return nil
		})
	}
}

func handleAutoRefresh(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var body struct {
			Enabled         bool `json:"enabled"`
			IntervalSeconds int  `json:"interval_seconds,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		var enabled bool
		var intervalSeconds int
		_, notes, err := deps.Sessions.Do(r.Context(), id, false, func(ext *builder.Extension) error {
			if body.IntervalSeconds != 0 {
				if err := ext.SetRefreshInterval(body.IntervalSeconds); err != nil {
					return err
				}
			}
			ext.SetAutoRefresh(body.Enabled)
			enabled = ext.AutoRefreshEnabled()
			intervalSeconds = int(ext.RefreshInterval().Seconds())
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, map[string]any{
			"enabled":          enabled,
			"interval_seconds": intervalSeconds,
		}, notes)
	}
}

func handleStats(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var view model.StatsView
		_, _, err := deps.Sessions.Do(r.Context(), id, false, func(ext *builder.Extension) error {
			view = ext.Stats().View()
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": view})
	}
}

func handleClearCache(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		_, notes, err := deps.Sessions.Do(r.Context(), id, false, func(ext *builder.Extension) error {
			return ext.ClearCache(r.Context())
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, map[string]string{"status": "cleared"}, notes)
	}
}

func handleExportSettings(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}

		name, doc := sess.Extension().ExportSettings()
		body, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			WriteError(w, r, model.NewInternalError())
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func handleImportSettings(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			WriteError(w, r, model.NewBadRequestError("unreadable request body"))
			return
		}

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			return ext.ImportSettings(r.Context(), data)
		})
	}
}

package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/internal/export"
	"github.com/calade/reportdeck/model"
)

func handleValidate(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		problems := []string{}
		_, notes, err := deps.Sessions.Do(r.Context(), id, false, func(ext *builder.Extension) error {
			if p := ext.Base().Validate(); p != nil {
				problems = p
			}
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, map[string]any{
			"valid":    len(problems) == 0,
			"problems": problems,
		}, notes)
	}
}

func handleExecute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Preview bool `json:"preview"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
				return
			}
		}

		runSession(deps, w, r, true, func(ext *builder.Extension) error {
			ext.ExecuteWithCache(r.Context(), builder.ExecuteOptions{Preview: body.Preview})
			return nil
		})
	}
}

func handleExport(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var body struct {
			Format string `json:"format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		var url string
		_, notes, err := deps.Sessions.Do(r.Context(), id, false, func(ext *builder.Extension) error {
			u, expErr := ext.Base().Export(r.Context(), body.Format)
			if expErr != nil {
				return expErr
			}
			url = u
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, map[string]any{
			"download_url": url,
			"format":       body.Format,
		}, notes)
	}
}

func handleSaveTemplate(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		var reportID int64
		_, notes, err := deps.Sessions.Do(r.Context(), id, true, func(ext *builder.Extension) error {
			rid, saveErr := ext.Base().SaveAsTemplate(r.Context(), body.Name)
			if saveErr != nil {
				return saveErr
			}
			reportID = rid
			return nil
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusCreated, map[string]any{"report_id": reportID}, notes)
	}
}

// resultInput builds the renderer input from session state, or reports the
// no-data condition when nothing has been executed yet.
func resultInput(st builder.State) (export.Input, error) {
	if !st.Executed || len(st.ReportData) == 0 {
		return export.Input{}, model.NewNoReportDataError()
	}
	in := export.Input{
		Fields: st.Definition.SelectedFields,
		Rows:   st.ReportData,
		Count:  st.ReportCount,
	}
	if st.Definition.SelectedModel != nil {
		in.ModelName = st.Definition.SelectedModel.Model
		in.ModelLabel = st.Definition.SelectedModel.Name
	}
	return in, nil
}

func handleResultsJSON(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		in, err := resultInput(sess.Extension().Base().State())
		if err != nil {
			WriteError(w, r, err)
			return
		}

		doc, err := export.JSON(in)
		if err != nil {
			WriteError(w, r, model.NewInternalError())
			return
		}
		name := fmt.Sprintf("report_results_%d.json", time.Now().Unix())
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		w.Write(doc)
	}
}

func handleResultsCSV(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		in, err := resultInput(sess.Extension().Base().State())
		if err != nil {
			WriteError(w, r, err)
			return
		}

		doc, err := export.CSV(in)
		if err != nil {
			WriteError(w, r, model.NewInternalError())
			return
		}
		name := fmt.Sprintf("report_results_%d.csv", time.Now().Unix())
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		w.Write(doc)
	}
}

func handlePreview(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		in, err := resultInput(sess.Extension().Base().State())
		if err != nil {
			WriteError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(export.HTMLPreview(in))
	}
}

package transport

import (
	"encoding/json"
	"net/http"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/model"
)

func handleListModels(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		models, err := deps.Gateway.ListModels(r.Context(), rctx)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"models": models}})
	}
}

func handleQuickReport(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req builder.QuickReportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		result, err := deps.Quick.Run(r.Context(), req)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": result})
	}
}

func handleValidateFilters(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var body struct {
			Model   string                 `json:"model"`
			Filters []model.PreparedFilter `json:"filters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.Model == "" {
			WriteError(w, r, model.NewBadRequestError("model is required"))
			return
		}

		results, err := deps.Gateway.ValidateFilters(r.Context(), rctx, body.Model, body.Filters)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"results": results}})
	}
}

package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/calade/reportdeck/internal/builder"
)

// sessionEnvelope is the data payload for session state responses.
type sessionEnvelope struct {
	SessionID string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	State     builder.State `json:"state"`
}

// runSession executes one builder operation against the addressed session
// and writes the resulting state envelope. State and session metadata both
// come out of the one Do call, so the response reflects exactly what this
// request produced even if the session is destroyed concurrently.
func runSession(deps Dependencies, w http.ResponseWriter, r *http.Request, mutating bool, op func(ext *builder.Extension) error) {
	id := chi.URLParam(r, "sessionID")

	var st builder.State
	sess, notes, err := deps.Sessions.Do(r.Context(), id, mutating, func(ext *builder.Extension) error {
		if err := op(ext); err != nil {
			return err
		}
		st = ext.Base().State()
		return nil
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, sessionEnvelope{
		SessionID: sess.ID,
		CreatedAt: sess.CreatedAt(),
		State:     st,
	}, notes)
}

func handleCreateSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, notes, err := deps.Sessions.Create(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusCreated, sessionEnvelope{
			SessionID: sess.ID,
			CreatedAt: sess.CreatedAt(),
			State:     sess.Extension().Base().State(),
		}, notes)
	}
}

func handleGetSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data": sessionEnvelope{
				SessionID: sess.ID,
				CreatedAt: sess.CreatedAt(),
				State:     sess.Extension().Base().State(),
			},
		})
	}
}

func handleDestroySession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sessions.Destroy(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	}
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codeclash/battle-backend/internal/ws"
)

func SetupRoutes(a *API) http.Handler {
	r := chi.NewRouter()

	r.Post("/queue/join", a.JoinQueue)
	r.Post("/queue/leave", a.LeaveQueue)
	r.Get("/queue/status", a.QueueStatus)

	r.Post("/battles", a.CreateBattle)
	r.Post("/battles/{battleID}/join", a.JoinBattle)
	r.Post("/battles/{battleID}/submit", a.SubmitCode)
	r.Get("/battles/{battleID}", a.GetBattle)

	r.Get("/ws", ws.Handler(a.Queue, a.Registry, a.Log))
	r.Get("/healthz", Healthz)
	return r
}

func pathBattleID(r *http.Request) string {
	return chi.URLParam(r, "battleID")
}

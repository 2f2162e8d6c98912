package http

import (
	"net/http"

	"livequiz/internal/app"
)

// NewRouter wires the RPC endpoints, the websocket feed and the health check.
func NewRouter(answers *app.AnswerService, games *app.GameController) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	NewRPCHandler(answers, games).Register(mux)
	mux.HandleFunc("GET /ws", NewWSHandler(answers, games).ServeWS)
	return mux
}

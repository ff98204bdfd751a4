package http

import (
	"net/http"
)

// NewRouter mounts the heartbeat, websocket and import endpoints.
// imp may be nil when imports are not configured.
func NewRouter(ws *WSHandler, imp *ImportHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", ws.ServeWS)
	if imp != nil {
		mux.Handle("/import", imp)
	}
	return mux
}

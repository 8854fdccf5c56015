package sse

import "net/http"

// Handler builds the net/http.Handler exposing the two SSE legs at
// "/sse" (GET, long-lived stream) and basePath (POST, client frames).
// Callers mount it under their own mux alongside health/metrics routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.ServeSSE(w, r)
	})
	mux.HandleFunc(s.basePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.ServePost(w, r)
	})
	return mux
}

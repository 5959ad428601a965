package server

import (
	"encoding/json"
	"net/http"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
//
// Platform callbacks live under /event, /action and /command/{name}, matching
// the URLs configured in the chat app, and are verified with the signing
// secret. Admin routes live under /v1; when authToken is non-empty they
// (except GET /v1/health) require Authorization: Bearer <token>.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	platformMux := http.NewServeMux()
	platformMux.HandleFunc("POST /event", s.handleEvent)
	platformMux.HandleFunc("POST /action", s.handleAction)
	platformMux.HandleFunc("POST /command/{name}", s.handleCommand)

	admin := http.NewServeMux()
	admin.HandleFunc("GET /v1/health", s.handleHealth)
	admin.HandleFunc("GET /v1/channels", s.handleListChannels)
	admin.HandleFunc("GET /v1/channels/{id}", s.handleGetChannel)
	admin.HandleFunc("POST /v1/channels/{id}/extend", s.handleExtendChannel)
	admin.HandleFunc("PUT /v1/channels/{id}/expiry", s.handleSetExpiry)
	admin.HandleFunc("DELETE /v1/channels/{id}", s.handleDeleteChannel)
	admin.HandleFunc("POST /v1/sweep", s.handleSweep)
	admin.HandleFunc("GET /v1/export", s.handleExport)
	admin.HandleFunc("POST /v1/import", s.handleImport)

	mux := http.NewServeMux()
	mux.Handle("/event", SignatureMiddleware(s.signingSecret, platformMux))
	mux.Handle("/action", SignatureMiddleware(s.signingSecret, platformMux))
	mux.Handle("/command/", SignatureMiddleware(s.signingSecret, platformMux))
	mux.HandleFunc("GET /oauth", s.handleOAuth)
	mux.Handle("/v1/", AuthMiddleware(authToken, admin))
	return RequestIDMiddleware(s.logger, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log(r.Context()).Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package httpserver

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"ticketbridge/internal/auth"
	"ticketbridge/internal/events"
)

// NewRouter serves health and login openly. Every other route needs a token
// granting the capability it is registered with.
func NewRouter(
	logger *slog.Logger,
	authSvc *auth.Service,
	status StatusProvider,
	backlog *events.BacklogHandler,
	runner DiagnosticsRunner,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.Handle("/api/v1/auth/login", loginHandler(authSvc, logger))

	gate := func(c auth.Capability, h http.Handler) http.Handler {
		return auth.Require(authSvc, c, logger)(h)
	}
	mux.Handle("/api/v1/auth/me", gate(auth.CapReadStatus, meHandler()))
	mux.Handle("/api/v1/status", gate(auth.CapReadStatus, statusHandler(status)))
	mux.Handle("/api/v1/backlog", gate(auth.CapReadBacklog, backlog))
	mux.Handle("/api/v1/diagnostics", gate(auth.CapRunDiagnostics, diagnosticsHandler(runner, logger)))

	return withCORS(mux)
}

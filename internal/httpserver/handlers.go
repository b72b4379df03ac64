package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"ticketbridge/internal/auth"
	"ticketbridge/internal/content"
	"ticketbridge/internal/diagnostics"
	"ticketbridge/internal/pipeline"
	"ticketbridge/internal/target"
)

// StatusProvider is satisfied by *pipeline.Bridge.
type StatusProvider interface {
	Status() pipeline.Status
}

type DiagnosticsRunner interface {
	Run(ctx context.Context, t target.Target) diagnostics.Result
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func loginHandler(svc *auth.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.Username == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sess, err := svc.Login(r.Context(), req.Username, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logger.Warn("failed login", "username", req.Username)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		if err != nil {
			logger.Error("login", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		logger.Info("operator logged in", "username", sess.Principal.Username, "role", sess.Principal.Role)
		writeJSON(w, http.StatusOK, sess)
	}
}

// meHandler echoes the caller's identity and what the token lets them do.
func meHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.PrincipalFromContext(r.Context())
		writeJSON(w, http.StatusOK, p)
	}
}

func statusHandler(p StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, p.Status())
	}
}

type diagnosticsResponse struct {
	Target  target.Target      `json:"target"`
	Result  diagnostics.Result `json:"result"`
	Summary string             `json:"summary"`
}

// diagnosticsHandler runs the probes against an ad-hoc target, the same way the
// bridge does for an event's impacted system.
func diagnosticsHandler(runner DiagnosticsRunner, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Target string `json:"target"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		t := target.Resolve(req.Target)
		if !t.Valid() {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": content.InvalidTargetSummary})
			return
		}
		p, _ := auth.PrincipalFromContext(r.Context())
		logger.Info("ad-hoc diagnostics", "operator", p.Username, "target", t.String())

		res := runner.Run(r.Context(), t)
		writeJSON(w, http.StatusOK, diagnosticsResponse{Target: t, Result: res, Summary: res.Summary()})
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

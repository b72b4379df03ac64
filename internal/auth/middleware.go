package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Require admits requests whose bearer token grants capability c. Missing or bad
// tokens get 401, valid tokens without the capability get 403.
func Require(svc *Service, c Capability, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ticketbridge"`)
				deny(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			p, err := svc.Verify(token)
			if err != nil {
				logger.Debug("rejected token", "path", r.URL.Path, "err", err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="ticketbridge", error="invalid_token"`)
				deny(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !p.Can(c) {
				logger.Warn("operator lacks capability", "operator", p.Username, "role", p.Role, "capability", c)
				deny(w, http.StatusForbidden, "missing capability "+string(c))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

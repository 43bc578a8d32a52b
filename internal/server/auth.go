package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"hamasa/internal/engine"
	"hamasa/internal/engine/auth"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// publicRoutes are reachable without a bearer token, relative to the base path.
var publicRoutes = []string{
	"health",
	"openapi.json",
	"auth/login",
	"auth/refresh-token",
	"auth/forgot-password",
	"auth/reset-password",
	"auth/change-password",
	"auth/send-otp",
	"auth/verify-otp",
	"auth/verify-phone",
}

func publicPaths(basePath string) map[string]bool {
	out := make(map[string]bool, len(publicRoutes))
	for _, r := range publicRoutes {
		out[path.Join(basePath, r)] = true
	}
	return out
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves the bearer token of every non-public API request
// into a principal. Paths outside the base path pass through untouched.
func newAuthMiddleware(basePath string, e engine.Engine) func(http.Handler) http.Handler {
	public := publicPaths(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath+"/") || public[strings.TrimSuffix(req.URL.Path, "/")] {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "", "Not authenticated", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "", "Could not validate credentials", nil))
				return
			}
			principal, err := e.Authenticate(req.Context(), token)
			if err != nil {
				var unauth auth.UnauthenticatedError
				if errors.As(err, &unauth) {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "", unauth.Error(), nil))
					return
				}
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "", "internal error", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

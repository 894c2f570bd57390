// Package middleware adapts the enforcement SDK to net/http services. It
// contains the per-request authorization middleware and a chi adapter that
// declares an application's routes as registry resources.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aegisauth/aegis/pkg/enforce"
	"github.com/aegisauth/aegis/pkg/registry"
)

// ForbiddenResponse is the JSON body returned when authorization is denied.
type ForbiddenResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Enforce creates an HTTP middleware that authorizes every request carrying
// a bearer identity. The action is the lowercased HTTP method and the
// resource is the request path, matched against the declared templates.
// Requests without an Authorization header pass through: authentication is
// the host application's concern and unauthenticated paths are its call.
func Enforce(enforcer *enforce.Enforcer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			action := strings.ToLower(r.Method)
			decision := enforcer.Check(r.Context(), user, action, enforce.ByPath(r.URL.Path), nil)
			if !decision.Allowed {
				slog.Warn("Authorization denied",
					"query_id", decision.QueryID,
					"source", string(decision.Source),
					"action", action,
					"path", r.URL.Path,
				)
				writeForbidden(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NoopMiddleware returns a middleware that performs no authorization checks.
// Use this when enforcement is disabled in the configuration.
func NoopMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// RegisterRoutes walks a chi router and declares every route pattern as a
// registry resource with one action per HTTP method. Chi patterns use the
// same brace syntax as path templates, so they compile as-is.
func RegisterRoutes(ctx context.Context, reg *registry.Registry, routes chi.Routes) error {
	return chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		action := registry.ActionDefinition{
			Name:       strings.ToLower(method),
			Attributes: map[string]string{"verb": method},
		}

		if reg.HasResource(route) {
			return reg.RegisterAction(ctx, route, action)
		}
		_, err := reg.RegisterResource(ctx, registry.ResourceDefinition{
			Name:    route,
			Type:    "rest",
			Path:    route,
			Actions: []registry.ActionDefinition{action},
		})
		return err
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", false
	}
	return token, true
}

func writeForbidden(w http.ResponseWriter) {
	resp := ForbiddenResponse{
		Error:   "forbidden",
		Message: "You do not have permission to perform this action.",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode forbidden response", "error", err)
	}
}

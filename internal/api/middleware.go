package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/challenge-bot/internal/config"
	"github.com/terra-clan/challenge-bot/internal/models"
)

var readPermissions = []string{
	models.PermCatalogRead,
	models.PermSessionsRead,
	models.PermCompilationsRead,
}

// AuthMiddleware handles API key authentication against configured tokens
type AuthMiddleware struct {
	clients map[string]*models.ApiClient
}

// NewAuthMiddleware creates auth middleware for the configured tokens. With
// no tokens configured every request is served as an anonymous admin.
func NewAuthMiddleware(cfg config.ServerConfig) *AuthMiddleware {
	m := &AuthMiddleware{clients: make(map[string]*models.ApiClient)}
	if cfg.APIToken != "" {
		m.clients[cfg.APIToken] = &models.ApiClient{Name: "admin", ApiKey: cfg.APIToken, Permissions: []string{"*"}}
	}
	if cfg.ReadToken != "" {
		m.clients[cfg.ReadToken] = &models.ApiClient{Name: "reader", ApiKey: cfg.ReadToken, Permissions: readPermissions}
	}
	if len(m.clients) == 0 {
		slog.Warn("no API tokens configured, API authentication disabled")
	}
	return m
}

// Authenticate verifies API key from Authorization header
// Supports formats: "Bearer sk_xxx" or "sk_xxx" in Authorization header,
// the X-API-Key header, and a token query parameter for websocket clients
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.clients) == 0 {
			anonymous := &models.ApiClient{Name: "anonymous", Permissions: []string{"*"}}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), anonymous)))
			return
		}

		apiKey := extractAPIKey(r)
		if apiKey == "" {
			respondError(w, http.StatusUnauthorized, "missing_api_key", "provide Authorization header with Bearer token or X-API-Key header")
			return
		}

		client, ok := m.clients[apiKey]
		if !ok {
			slog.Warn("invalid api key attempt", "key_prefix", maskKey(apiKey), "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "invalid_api_key", "the provided api key is not valid")
			return
		}

		slog.Debug("authenticated request", "client", client.Name, "key_prefix", client.MaskedApiKey())

		ctx := WithCaller(r.Context(), client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission returns middleware that checks for specific permission
func (m *AuthMiddleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := CallerFrom(r.Context())
			if client == nil {
				respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
				return
			}

			if !client.HasPermission(permission) {
				slog.Warn("permission denied",
					"client", client.Name,
					"required", permission,
					"has", client.Permissions,
				)
				respondError(w, http.StatusForbidden, "permission_denied",
					"client does not have required permission: "+permission)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKey extracts API key from request headers
func extractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	// Browsers cannot set headers on a websocket handshake
	return r.URL.Query().Get("token")
}

// maskKey returns first 8 chars of key for safe logging
func maskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}

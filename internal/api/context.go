package api

import (
	"context"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// callerKey carries the token holder that AuthMiddleware resolved for a
// request. Handlers behind Authenticate can rely on it being set.
type callerKey struct{}

// WithCaller returns ctx carrying the authenticated API token holder
func WithCaller(ctx context.Context, caller *models.ApiClient) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the token holder of the request, or nil outside the
// authenticated routes.
func CallerFrom(ctx context.Context) *models.ApiClient {
	caller, _ := ctx.Value(callerKey{}).(*models.ApiClient)
	return caller
}

// callerName names the token holder for operator audit logs.
func callerName(ctx context.Context) string {
	if caller := CallerFrom(ctx); caller != nil {
		return caller.Name
	}
	return "unknown"
}

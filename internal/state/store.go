// Package state holds the small amount of state shared between bot
// replicas: session locks and compilation counters.
package state

import (
	"context"
	"time"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// Store is implemented by RedisStore and MemoryStore.
type Store interface {
	// Acquire takes key for ttl. ok is false when someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release frees key if token still owns it.
	Release(ctx context.Context, key, token string) error

	IncrCompilation(ctx context.Context, lang models.Language, succeeded bool) error
	CompilationStats(ctx context.Context) ([]models.CompilationStats, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

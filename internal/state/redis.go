package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/challenge-bot/internal/models"
)

const (
	lockPrefix = "challenge:lock:"
	statsKey   = "challenge:stats:compilations"
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps locks and counters in Redis
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, address, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("connected to redis", "address", address, "db", db)
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Acquire implements Store
func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return token, ok, nil
}

// Release implements Store
func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{lockPrefix + key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func statsField(lang models.Language, succeeded bool) string {
	if succeeded {
		return string(lang) + ":ok"
	}
	return string(lang) + ":fail"
}

// IncrCompilation implements Store
func (s *RedisStore) IncrCompilation(ctx context.Context, lang models.Language, succeeded bool) error {
	if err := s.client.HIncrBy(ctx, statsKey, statsField(lang, succeeded), 1).Err(); err != nil {
		return fmt.Errorf("failed to count compilation: %w", err)
	}
	return nil
}

// CompilationStats implements Store
func (s *RedisStore) CompilationStats(ctx context.Context) ([]models.CompilationStats, error) {
	fields, err := s.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read compilation stats: %w", err)
	}

	byLang := make(map[models.Language]*models.CompilationStats)
	for field, value := range fields {
		name, outcome, found := strings.Cut(field, ":")
		if !found {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			slog.Warn("skipping malformed stats counter", "field", field, "value", value)
			continue
		}

		lang := models.Language(name)
		st, ok := byLang[lang]
		if !ok {
			st = &models.CompilationStats{Language: lang}
			byLang[lang] = st
		}
		switch outcome {
		case "ok":
			st.Succeeded += n
		case "fail":
			st.Failed += n
		}
	}
	return sortStats(byLang), nil
}

func sortStats(byLang map[models.Language]*models.CompilationStats) []models.CompilationStats {
	out := make([]models.CompilationStats, 0, len(byLang))
	for _, st := range byLang {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// HealthCheck verifies Redis connectivity
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

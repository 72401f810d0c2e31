package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/challenge-bot/internal/models"
)

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is a single-process Store used when Redis is not configured.
type MemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]memoryLock
	stats map[models.Language]*models.CompilationStats
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:   time.Now,
		locks: make(map[string]memoryLock),
		stats: make(map[models.Language]*models.CompilationStats),
	}
}

func (s *MemoryStore) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if l, held := s.locks[key]; held && now.Before(l.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	s.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (s *MemoryStore) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, held := s.locks[key]; held && l.token == token {
		delete(s.locks, key)
	}
	return nil
}

func (s *MemoryStore) IncrCompilation(_ context.Context, lang models.Language, succeeded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[lang]
	if !ok {
		st = &models.CompilationStats{Language: lang}
		s.stats[lang] = st
	}
	if succeeded {
		st.Succeeded++
	} else {
		st.Failed++
	}
	return nil
}

func (s *MemoryStore) CompilationStats(_ context.Context) ([]models.CompilationStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortStats(s.stats), nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

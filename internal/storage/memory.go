package storage

import (
	"context"
	"sync"
	"time"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// MemoryRepository keeps the most recent compilations in memory. It backs the
// journal when no database is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	capacity int
	nextID   int64
	records  []*models.CompilationRecord // oldest first
}

// NewMemoryRepository keeps at most capacity records.
func NewMemoryRepository(capacity int) *MemoryRepository {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryRepository{capacity: capacity}
}

func (r *MemoryRepository) RecordCompilation(_ context.Context, rec *models.CompilationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	rec.ID = r.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	cp := *rec
	r.records = append(r.records, &cp)
	if over := len(r.records) - r.capacity; over > 0 {
		r.records = r.records[over:]
	}
	return nil
}

func (r *MemoryRepository) ListCompilations(_ context.Context, filters models.CompilationFilters) ([]*models.CompilationRecord, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.CompilationRecord
	skipped := 0
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := r.records[i]
		if filters.OwnerID != "" && rec.OwnerID != filters.OwnerID {
			continue
		}
		if filters.Language != "" && rec.Language != filters.Language {
			continue
		}
		if skipped < filters.Offset {
			skipped++
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)

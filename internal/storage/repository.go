package storage

import (
	"context"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// Repository defines the interface for the compilation journal
type Repository interface {
	// Compilations
	RecordCompilation(ctx context.Context, rec *models.CompilationRecord) error
	ListCompilations(ctx context.Context, filters models.CompilationFilters) ([]*models.CompilationRecord, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

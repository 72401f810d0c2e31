package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// DefaultListLimit caps a journal listing when the caller sets no limit.
const DefaultListLimit = 50

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 10
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 1
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// RecordCompilation appends a compile to the journal and sets rec.ID.
func (r *PostgresRepository) RecordCompilation(ctx context.Context, rec *models.CompilationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO compilations (session_id, owner_id, owner_tag, channel_id, language, challenge, succeeded, status, url, compiler_message, code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		rec.SessionID,
		rec.OwnerID,
		rec.OwnerTag,
		rec.ChannelID,
		string(rec.Language),
		rec.Challenge,
		rec.Succeeded,
		rec.Status,
		nullString(rec.URL),
		nullString(rec.CompilerMessage),
		rec.Code,
		rec.CreatedAt,
	).Scan(&rec.ID)

	if err != nil {
		return fmt.Errorf("failed to record compilation: %w", err)
	}

	return nil
}

// ListCompilations returns journal entries matching filters, newest first
func (r *PostgresRepository) ListCompilations(ctx context.Context, filters models.CompilationFilters) ([]*models.CompilationRecord, error) {
	query, args := listQuery(filters)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list compilations: %w", err)
	}
	defer rows.Close()

	var records []*models.CompilationRecord

	for rows.Next() {
		var rec models.CompilationRecord
		var lang string
		var url, compilerMsg sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.OwnerID,
			&rec.OwnerTag,
			&rec.ChannelID,
			&lang,
			&rec.Challenge,
			&rec.Succeeded,
			&rec.Status,
			&url,
			&compilerMsg,
			&rec.Code,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan compilation: %w", err)
		}

		rec.Language = models.Language(lang)
		rec.URL = url.String
		rec.CompilerMessage = compilerMsg.String
		records = append(records, &rec)
	}

	return records, rows.Err()
}

func listQuery(filters models.CompilationFilters) (string, []any) {
	query := `
		SELECT id, session_id, owner_id, owner_tag, channel_id, language, challenge, succeeded, status, url, compiler_message, code, created_at
		FROM compilations
		WHERE 1=1
	`
	args := make([]any, 0)
	argNum := 1

	if filters.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argNum)
		args = append(args, filters.OwnerID)
		argNum++
	}

	if filters.Language != "" {
		query += fmt.Sprintf(" AND language = $%d", argNum)
		args = append(args, string(filters.Language))
		argNum++
	}

	query += " ORDER BY created_at DESC, id DESC"

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, limit)
	argNum++

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	return query, args
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

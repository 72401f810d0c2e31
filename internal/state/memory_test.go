package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/challenge-bot/internal/models"
)

func TestMemoryStoreLocks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	token, ok, err := s.Acquire(ctx, "u1:c1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = s.Acquire(ctx, "u1:c1", time.Minute)
	assert.False(t, ok, "held lock")

	require.NoError(t, s.Release(ctx, "u1:c1", "someone-else"))
	_, ok, _ = s.Acquire(ctx, "u1:c1", time.Minute)
	assert.False(t, ok, "foreign token must not release")

	require.NoError(t, s.Release(ctx, "u1:c1", token))
	_, ok, _ = s.Acquire(ctx, "u1:c1", time.Minute)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = s.Acquire(ctx, "u1:c1", time.Minute)
	assert.True(t, ok, "expired lock is free")
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.IncrCompilation(ctx, models.LangPython, true))
	require.NoError(t, s.IncrCompilation(ctx, models.LangPython, false))
	require.NoError(t, s.IncrCompilation(ctx, models.LangCpp, false))

	stats, err := s.CompilationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CompilationStats{
		{Language: models.LangCpp, Failed: 1},
		{Language: models.LangPython, Succeeded: 1, Failed: 1},
	}, stats)
}

package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Reaper cancels sessions that outlived maxAge and returns their ids.
type Reaper interface {
	ReapStale(ctx context.Context, maxAge time.Duration) []string
}

// Cleaner handles periodic cleanup of stale challenge sessions
type Cleaner struct {
	reaper   Reaper
	interval time.Duration
	maxAge   time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(reaper Reaper, interval, maxAge time.Duration) *Cleaner {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}

	return &Cleaner{
		reaper:   reaper,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run reaps stale sessions every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context) error {
	slog.Info("cleanup worker started", "interval", c.interval, "max_age", c.maxAge)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return nil
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup cancels every session older than maxAge
func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	reaped := c.reaper.ReapStale(ctx, c.maxAge)
	if len(reaped) == 0 {
		slog.Debug("no stale sessions found")
		return
	}

	for _, id := range reaped {
		slog.Info("stale session cancelled", "session_id", id)
	}
	slog.Info("cleanup cycle finished", "reaped", len(reaped))
}

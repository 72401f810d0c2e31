// Package gate implements timed, single-resolution waits for one qualifying
// input from a specific user.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terra-clan/challenge-bot/internal/chat"
)

var (
	// ErrTimeout means the deadline passed with no qualifying input.
	ErrTimeout = errors.New("gate timed out")

	// ErrAbandoned means the watched message was deleted.
	ErrAbandoned = errors.New("gate message deleted")

	ErrNoCode = errors.New("message contains no code block")
)

// withDeadline applies deadline to ctx. A zero deadline leaves ctx as is.
func withDeadline(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline)
}

// classify maps a transport wait error onto the gate outcomes. Cancellation
// of the parent context is passed through unchanged.
func classify(parent context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrMessageNotFound):
		return fmt.Errorf("%w: %w", ErrAbandoned, err)
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return err
	}
}

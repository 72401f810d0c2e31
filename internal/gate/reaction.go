package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/terra-clan/challenge-bot/internal/chat"
)

// ReactionRequest describes one arming of a ReactionGate.
type ReactionRequest struct {
	Channel  string
	Message  string
	UserID   string
	Emojis   []string // attached in this order
	Deadline time.Time

	// OnAttachError, when set, is called with the attach failure before the
	// wait starts.
	OnAttachError func(error)
}

// ReactionResult is the user's choice. AttachErr collects reactions the bot
// could not add; the wait still ran.
type ReactionResult struct {
	Emoji     string
	AttachErr error
}

// ReactionGate offers a fixed set of reactions on a message and waits for the
// owner to pick one. Re-arming after a non-terminal choice is the caller's
// loop.
type ReactionGate struct {
	transport chat.Transport
}

// NewReactionGate creates a gate on t
func NewReactionGate(t chat.Transport) *ReactionGate {
	return &ReactionGate{transport: t}
}

// Arm attaches the candidate reactions and waits for the owner's first match.
// It returns ErrTimeout at the deadline, ErrAbandoned if the message is
// deleted, and ctx.Err() if ctx is cancelled first.
func (g *ReactionGate) Arm(ctx context.Context, req ReactionRequest) (ReactionResult, error) {
	var res ReactionResult

	attachErr := g.Attach(ctx, req.Channel, req.Message, req.Emojis)
	if errors.Is(attachErr, chat.ErrMessageNotFound) {
		return res, classify(ctx, attachErr)
	}
	res.AttachErr = attachErr
	if attachErr != nil && req.OnAttachError != nil && ctx.Err() == nil {
		req.OnAttachError(attachErr)
	}

	waitCtx, cancel := withDeadline(ctx, req.Deadline)
	defer cancel()

	r, err := g.transport.NextReaction(waitCtx, chat.ReactionQuery{
		Channel: req.Channel,
		Message: req.Message,
		UserID:  req.UserID,
		Emojis:  req.Emojis,
	})
	if err != nil {
		return res, classify(ctx, err)
	}

	slog.Debug("reaction gate resolved", "message", req.Message, "user", req.UserID, "emoji", r.Emoji)
	res.Emoji = r.Emoji
	return res, nil
}

// Attach adds emojis to a message in order. Every failure is collected; a
// deleted message stops the loop.
func (g *ReactionGate) Attach(ctx context.Context, channel, message string, emojis []string) error {
	var errs []error
	for _, emoji := range emojis {
		err := g.transport.AddReaction(ctx, channel, message, emoji)
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("react %s: %w", emoji, err))
		if errors.Is(err, chat.ErrMessageNotFound) || ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

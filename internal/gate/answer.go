package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/challenge-bot/internal/chat"
)

// AnswerRequest describes one wait for a submission.
type AnswerRequest struct {
	Channel  string
	UserID   string
	After    uint64 // only messages after this sequence number count
	Deadline time.Time
}

// AnswerGate waits for the owner's next message in a channel.
type AnswerGate struct {
	transport chat.Transport
}

// NewAnswerGate creates a gate on t
func NewAnswerGate(t chat.Transport) *AnswerGate {
	return &AnswerGate{transport: t}
}

// Wait returns the owner's next message, ErrTimeout at the deadline, or
// ctx.Err() if ctx is cancelled first.
func (g *AnswerGate) Wait(ctx context.Context, req AnswerRequest) (*chat.Message, error) {
	waitCtx, cancel := withDeadline(ctx, req.Deadline)
	defer cancel()

	msg, err := g.transport.NextMessage(waitCtx, chat.MessageQuery{
		Channel:  req.Channel,
		AuthorID: req.UserID,
		After:    req.After,
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	slog.Debug("answer gate resolved", "channel", req.Channel, "user", req.UserID, "message", msg.ID)
	return msg, nil
}

// Extract pulls the submitted code out of msg. The first attachment wins over
// inline text; otherwise the first fenced block is used with its language tag
// removed. Fails with ErrNoCode or a wrapped chat.ErrAttachment.
func (g *AnswerGate) Extract(ctx context.Context, msg *chat.Message) (string, error) {
	if len(msg.Attachments) > 0 {
		return g.transport.FetchAttachment(ctx, msg.Attachments[0])
	}
	code, ok := ExtractCodeBlock(msg.Content)
	if !ok {
		return "", ErrNoCode
	}
	return code, nil
}

package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/terra-clan/challenge-bot/internal/chat"
	"github.com/terra-clan/challenge-bot/internal/models"
	"github.com/terra-clan/challenge-bot/internal/present"
	"github.com/terra-clan/challenge-bot/internal/session"
)

// Source is the event stream the dispatcher listens to
type Source interface {
	Bot() chat.User
	Subscribe(buffer int) (<-chan chat.Event, func())
}

// Starter launches a session for a validated command
type Starter interface {
	Start(ctx context.Context, req session.Request) (models.SessionInfo, error)
}

// Dispatcher turns channel messages into challenge sessions.
type Dispatcher struct {
	source    Source
	transport chat.Transport
	sessions  Starter
	presenter *present.Presenter
	prefix    string

	events      <-chan chat.Event
	unsubscribe func()
}

// NewDispatcher creates a dispatcher answering commands that start with
// prefix. It subscribes to source immediately, so messages posted before Run
// starts are still handled.
func NewDispatcher(source Source, transport chat.Transport, sessions Starter, presenter *present.Presenter, prefix string) *Dispatcher {
	events, unsubscribe := source.Subscribe(256)
	return &Dispatcher{
		source:      source,
		transport:   transport,
		sessions:    sessions,
		presenter:   presenter,
		prefix:      prefix,
		events:      events,
		unsubscribe: unsubscribe,
	}
}

// Run handles messages until ctx is done and then unsubscribes. Sessions it
// starts inherit ctx. Run must be called at most once.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.unsubscribe()

	slog.Info("dispatcher started", "prefix", d.prefix)
	bot := d.source.Bot()

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopped")
			return nil
		case ev, ok := <-d.events:
			if !ok {
				return nil
			}
			if ev.Type != chat.EventMessageCreated || ev.Message == nil || ev.Message.Author.ID == bot.ID {
				continue
			}
			d.Handle(ctx, ev.Message)
		}
	}
}

// Handle processes a single message. Non-commands are ignored.
func (d *Dispatcher) Handle(ctx context.Context, msg *chat.Message) {
	name, args, ok := session.SplitCommand(d.prefix, msg.Content)
	if !ok || name != session.CommandName {
		return
	}

	log := slog.With("channel", msg.Channel, "owner", msg.Author.ID, "message_id", msg.ID)
	log.Debug("challenge command received", "args", args)

	lang, level, err := session.ParseArgs(d.prefix, args)
	if errors.Is(err, session.ErrHelp) {
		d.reply(ctx, msg, d.presenter.Help(msg.Author.Tag))
		return
	}
	var se *session.Error
	if errors.As(err, &se) {
		d.reply(ctx, msg, d.presenter.Failure(se.Msg))
		return
	}

	info, err := d.sessions.Start(ctx, session.Request{
		Owner:     msg.Author,
		Channel:   msg.Channel,
		Language:  lang,
		Level:     level,
		CommandID: msg.ID,
	})
	switch {
	case err == nil:
		log.Info("session launched", "session_id", info.ID, "language", lang)
	case errors.Is(err, session.ErrAlreadyRunning):
		d.reply(ctx, msg, d.presenter.Failure("You already have a challenge running in this channel"))
	default:
		log.Error("failed to start session", "error", err)
		d.reply(ctx, msg, d.presenter.Failure("Unable to start a challenge right now, please try again later"))
	}
}

func (d *Dispatcher) reply(ctx context.Context, msg *chat.Message, card *chat.Card) {
	if _, err := d.transport.Send(ctx, msg.Channel, chat.Outgoing{Card: card, ReplyTo: msg.ID}); err != nil {
		slog.Warn("failed to reply to command", "channel", msg.Channel, "error", err)
	}
}

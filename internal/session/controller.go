package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/challenge-bot/internal/chat"
	"github.com/terra-clan/challenge-bot/internal/compiler"
	"github.com/terra-clan/challenge-bot/internal/gate"
	"github.com/terra-clan/challenge-bot/internal/models"
	"github.com/terra-clan/challenge-bot/internal/present"
)

// Catalog is the read-only challenge source a session draws from.
type Catalog interface {
	SelectRandom(level *int, lang models.Language) (*models.Challenge, bool)
	Synthesize(userCode string, tests []string, lang models.Language) (string, bool)
}

// Journal records every compile a session submits.
type Journal interface {
	RecordCompilation(ctx context.Context, rec *models.CompilationRecord) error
}

// Stats counts compile outcomes per language.
type Stats interface {
	IncrCompilation(ctx context.Context, lang models.Language, succeeded bool) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Catalog   Catalog
	Compiler  compiler.Gateway
	Transport chat.Transport
	Presenter *present.Presenter
	Journal   Journal // optional
	Stats     Stats   // optional
}

// Options tune session timing.
type Options struct {
	AnswerTimeout time.Duration
	ActionTimeout time.Duration
	LoadingEmoji  string
	Prefix        string
	MaxDraws      int // selection attempts before a repeat is accepted
}

// DefaultOptions returns the production timings
func DefaultOptions() Options {
	return Options{
		AnswerTimeout: 5 * time.Minute,
		ActionTimeout: 30 * time.Second,
		LoadingEmoji:  "⏳",
		Prefix:        ";",
		MaxDraws:      4,
	}
}

// Request is a validated challenge command.
type Request struct {
	Owner     chat.User
	Channel   string
	Language  models.Language
	Level     *int
	CommandID string // message that issued the command
}

type nextAction int

const (
	actionQuit nextAction = iota
	actionRetry
	actionNext
)

// errQuit ends the loop without telling anyone.
var errQuit = errors.New("session quit")

// teardownTimeout bounds cleanup performed after the session context ends.
const teardownTimeout = 10 * time.Second

// Controller drives one requester's challenge loop. Transitions are strictly
// sequential; only AWAITING_INPUT runs two listeners at once.
type Controller struct {
	id        string
	deps      Deps
	opts      Options
	req       Request
	startedAt time.Time

	reactions *gate.ReactionGate
	answers   *gate.AnswerGate

	mu         sync.Mutex
	state      models.SessionState
	level      *int
	challenge  *models.Challenge
	lastName   string
	display    *chat.Message
	hints      []*chat.Message
	hintsShown int
	rounds     int

	// displayGone flips once per display message; every delete of the display
	// and its hint replies goes through it.
	displayGone atomic.Bool
}

// NewController creates a controller for req
func NewController(deps Deps, opts Options, req Request) *Controller {
	if opts.MaxDraws <= 0 {
		opts.MaxDraws = 4
	}
	return &Controller{
		id:        uuid.NewString(),
		deps:      deps,
		opts:      opts,
		req:       req,
		startedAt: time.Now(),
		reactions: gate.NewReactionGate(deps.Transport),
		answers:   gate.NewAnswerGate(deps.Transport),
		state:     models.StateSelecting,
		level:     req.Level,
	}
}

// ID returns the session id
func (c *Controller) ID() string {
	return c.id
}

// Info returns a snapshot of the session
func (c *Controller) Info() models.SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := models.SessionInfo{
		ID:        c.id,
		OwnerID:   c.req.Owner.ID,
		OwnerTag:  c.req.Owner.Tag,
		ChannelID: c.req.Channel,
		Language:  c.req.Language,
		State:     c.state,
		Rounds:    c.rounds,
		StartedAt: c.startedAt,
	}
	if c.level != nil {
		level := *c.level
		info.Level = &level
	}
	if c.challenge != nil {
		info.Challenge = c.challenge.Name
		info.HintsRemaining = c.hintsRemainingLocked()
	}
	return info
}

func (c *Controller) setState(s models.SessionState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	slog.Debug("session transition", "session_id", c.id, "from", prev, "to", s)
}

func (c *Controller) log() *slog.Logger {
	return slog.With("session_id", c.id, "channel", c.req.Channel, "owner", c.req.Owner.ID, "language", c.req.Language)
}

// Run executes the session until it terminates and reports the outcome to
// the requester. The returned error is nil for a normal quit.
func (c *Controller) Run(ctx context.Context) error {
	c.log().Info("session started")

	err := c.run(ctx)
	c.setState(models.StateTerminated)

	if errors.Is(err, errQuit) {
		err = nil
	}
	if err != nil && ctx.Err() != nil && KindOf(err) != KindAbandoned {
		// Cancelled from outside: the operator or the reaper ended it.
		err = newError(KindAbandoned, err, "session cancelled")
		c.teardownDisplay(context.WithoutCancel(ctx))
	}
	c.report(ctx, err)

	c.log().Info("session finished", "kind", KindOf(err), "rounds", c.Info().Rounds)
	return err
}

func (c *Controller) run(ctx context.Context) error {
	supported, err := compiler.Supports(ctx, c.deps.Compiler, c.req.Language)
	if err != nil {
		return c.compileFailure(err)
	}
	if !supported {
		return invalidLanguage(c.opts.Prefix)
	}

	placeholder, err := c.deps.Transport.Send(ctx, c.req.Channel, chat.Outgoing{
		Card:    c.deps.Presenter.Searching(c.req.Owner.Tag),
		ReplyTo: c.req.CommandID,
	})
	if err != nil {
		return newError(KindTransport, err, "Failed to send message")
	}
	c.setDisplay(placeholder)

	selectNext := true
	for {
		if selectNext {
			if err := c.selectChallenge(ctx); err != nil {
				return err
			}
		}

		answer, code, err := c.presentAndAwait(ctx)
		if err != nil {
			return err
		}

		result, err := c.synthesizeAndCompile(ctx, answer, code)
		if err != nil {
			return err
		}

		action, err := c.showResult(ctx, answer, result)
		if err != nil {
			return err
		}

		switch action {
		case actionRetry:
			selectNext = false
		case actionNext:
			selectNext = true
		default:
			return errQuit
		}
	}
}

// --- SELECTING ---

func (c *Controller) selectChallenge(ctx context.Context) error {
	c.setState(models.StateSelecting)

	c.mu.Lock()
	level, last := c.level, c.lastName
	c.mu.Unlock()

	var picked *models.Challenge
	for draw := 1; draw <= c.opts.MaxDraws; draw++ {
		ch, ok := c.deps.Catalog.SelectRandom(level, c.req.Language)
		if !ok {
			break
		}
		picked = ch
		if ch.Name != last {
			break
		}
		c.log().Debug("drew previous challenge again", "challenge", ch.Name, "draw", draw)
	}

	if picked == nil {
		c.teardownDisplay(ctx)
		levelText := "any"
		if level != nil {
			levelText = fmt.Sprint(*level)
		}
		return newError(KindNotFound, nil, "Couldn't find any challenges regarding `%s` for level `%s`, sorry!", c.req.Language, levelText)
	}

	c.mu.Lock()
	c.challenge = picked
	c.hintsShown = 0
	if c.level == nil {
		pinned := picked.Level
		c.level = &pinned
	}
	c.mu.Unlock()

	c.log().Info("challenge selected", "challenge", picked.Name, "level", picked.Level)
	return nil
}

// --- PRESENTING / AWAITING_INPUT ---

type outcomeKind int

const (
	outcomeAnswer outcomeKind = iota
	outcomeCancel
	outcomeError
)

type outcome struct {
	kind   outcomeKind
	answer *chat.Message
	code   string
	err    error
}

func (c *Controller) presentAndAwait(ctx context.Context) (*chat.Message, string, error) {
	c.setState(models.StatePresenting)

	c.mu.Lock()
	ch := c.challenge
	c.rounds++
	c.mu.Unlock()

	lines, ok := ch.DescriptionFor(c.req.Language)
	if !ok {
		c.teardownDisplay(ctx)
		return nil, "", newError(KindNotFound, nil, "Failed loading `%s`, description couldn't be loaded on language `%s`", ch.Name, c.req.Language)
	}

	card := c.deps.Presenter.Challenge(ch, c.req.Language, present.CleanDescription(lines), c.req.Owner.Tag, c.opts.AnswerTimeout)
	display, err := c.showDisplay(ctx, card)
	if err != nil {
		return nil, "", err
	}

	c.setState(models.StateAwaitingInput)
	deadline := time.Now().Add(c.opts.AnswerTimeout)

	listenCtx, stop := context.WithCancel(ctx)
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		results <- c.hintLoop(listenCtx, display, deadline)
	}()
	go func() {
		defer wg.Done()
		results <- c.answerLoop(listenCtx, display, deadline)
	}()

	first := <-results
	stop()
	wg.Wait()

	switch first.kind {
	case outcomeAnswer:
		c.clearReactions(ctx, display.ID)
		return first.answer, first.code, nil
	case outcomeCancel:
		c.log().Info("session cancelled by owner")
		c.teardownDisplay(ctx)
		return nil, "", errQuit
	}

	err = first.err
	switch {
	case errors.Is(err, gate.ErrTimeout):
		if c.displayGone.Load() {
			return nil, "", newError(KindAbandoned, err, "display already removed")
		}
		c.clearReactions(ctx, display.ID)
		return nil, "", newError(KindTimeout, err, "Question Timeout")
	case errors.Is(err, gate.ErrAbandoned):
		c.displayGone.Store(true)
		return nil, "", newError(KindAbandoned, err, "display deleted")
	}
	return nil, "", err
}

// showDisplay edits the current display in place or posts a new one.
func (c *Controller) showDisplay(ctx context.Context, card *chat.Card) (*chat.Message, error) {
	c.mu.Lock()
	current := c.display
	c.mu.Unlock()

	if current != nil && !c.displayGone.Load() {
		msg, err := c.deps.Transport.Edit(ctx, c.req.Channel, current.ID, chat.Outgoing{Card: card})
		if err == nil {
			return msg, nil
		}
		if errors.Is(err, chat.ErrMessageNotFound) {
			c.displayGone.Store(true)
			return nil, newError(KindAbandoned, err, "display deleted")
		}
		return nil, newError(KindTransport, err, "Failed to update the challenge message")
	}

	msg, err := c.deps.Transport.Send(ctx, c.req.Channel, chat.Outgoing{Card: card, ReplyTo: c.req.CommandID})
	if err != nil {
		return nil, newError(KindTransport, err, "Failed to send the challenge message")
	}
	c.setDisplay(msg)
	return msg, nil
}

func (c *Controller) setDisplay(msg *chat.Message) {
	c.mu.Lock()
	c.display = msg
	c.hints = nil
	c.mu.Unlock()
	c.displayGone.Store(false)
}

func (c *Controller) hintsRemainingLocked() int {
	if c.challenge == nil {
		return 0
	}
	return max(len(c.challenge.HintsFor(c.req.Language))-c.hintsShown, 0)
}

// hintLoop re-arms the reaction gate after every revealed hint until the
// owner cancels or the gate ends.
func (c *Controller) hintLoop(ctx context.Context, display *chat.Message, deadline time.Time) outcome {
	offerHints := true
	warned := false

	for {
		c.mu.Lock()
		remaining := c.hintsRemainingLocked()
		c.mu.Unlock()

		emojis := []string{present.EmojiCancel}
		if offerHints && remaining > 0 {
			emojis = []string{present.EmojiHint, present.EmojiCancel}
		}

		res, err := c.reactions.Arm(ctx, gate.ReactionRequest{
			Channel:  c.req.Channel,
			Message:  display.ID,
			UserID:   c.req.Owner.ID,
			Emojis:   emojis,
			Deadline: deadline,
			OnAttachError: func(err error) {
				if warned {
					return
				}
				warned = true
				c.warn(ctx, display.ID, fmt.Sprintf("Failed to react to message, am I missing permissions?\n%v", err))
			},
		})
		if err != nil {
			return outcome{kind: outcomeError, err: err}
		}

		switch res.Emoji {
		case present.EmojiCancel:
			return outcome{kind: outcomeCancel}
		case present.EmojiHint:
			if ctx.Err() != nil {
				return outcome{kind: outcomeError, err: ctx.Err()}
			}
			c.revealHint(ctx, display)
			if err := c.deps.Transport.ClearReactions(ctx, c.req.Channel, display.ID); err != nil {
				if errors.Is(err, chat.ErrMessageNotFound) {
					return outcome{kind: outcomeError, err: fmt.Errorf("%w: %w", gate.ErrAbandoned, err)}
				}
				if ctx.Err() != nil {
					return outcome{kind: outcomeError, err: ctx.Err()}
				}
				// The owner's hint reaction would fire again on the next arm.
				offerHints = false
				c.warn(ctx, display.ID, fmt.Sprintf("Unable to remove reactions, am I missing permissions?\n%v", err))
			}
		}
	}
}

// revealHint posts the earliest hint not yet shown as a reply.
func (c *Controller) revealHint(ctx context.Context, display *chat.Message) {
	c.mu.Lock()
	hints := c.challenge.HintsFor(c.req.Language)
	if c.hintsShown >= len(hints) {
		c.mu.Unlock()
		return
	}
	n := c.hintsShown
	c.hintsShown++
	c.mu.Unlock()

	msg, err := c.deps.Transport.Send(ctx, c.req.Channel, chat.Outgoing{
		Card:    c.deps.Presenter.Hint(n+1, len(hints), hints[n]),
		ReplyTo: display.ID,
	})
	if err != nil {
		c.log().Warn("failed to post hint", "error", err)
		return
	}

	c.mu.Lock()
	c.hints = append(c.hints, msg)
	c.mu.Unlock()
	c.log().Debug("hint revealed", "hint", n+1, "of", len(hints))
}

// answerLoop waits for a message carrying code. Messages without code get a
// reply and the wait continues against the same deadline.
func (c *Controller) answerLoop(ctx context.Context, display *chat.Message, deadline time.Time) outcome {
	after := display.Seq
	for {
		msg, err := c.answers.Wait(ctx, gate.AnswerRequest{
			Channel:  c.req.Channel,
			UserID:   c.req.Owner.ID,
			After:    after,
			Deadline: deadline,
		})
		if err != nil {
			return outcome{kind: outcomeError, err: err}
		}

		code, err := c.answers.Extract(ctx, msg)
		switch {
		case err == nil:
			return outcome{kind: outcomeAnswer, answer: msg, code: code}
		case errors.Is(err, gate.ErrNoCode):
			after = msg.Seq
			if ctx.Err() == nil {
				c.replyFailure(ctx, msg.ID, "You must attach codeblocks containing code to your message")
			}
		case errors.Is(err, chat.ErrAttachment):
			return outcome{kind: outcomeError, err: newError(KindTransport, err, "Could not retrieve code from url \n %v", err)}
		default:
			return outcome{kind: outcomeError, err: err}
		}
	}
}

// --- SYNTHESIZING / COMPILING ---

func (c *Controller) synthesizeAndCompile(ctx context.Context, answer *chat.Message, code string) (*models.CompileResult, error) {
	c.setState(models.StateSynthesizing)

	c.mu.Lock()
	ch := c.challenge
	c.mu.Unlock()

	cleaned := gate.CleanSubmission(code)
	source, ok := c.deps.Catalog.Synthesize(cleaned, ch.TestsFor(c.req.Language), c.req.Language)
	if !ok {
		return nil, newError(KindSynthesis, nil, "Failed to build a program for `%s`: no template is available for this language", c.req.Language)
	}

	c.setState(models.StateCompiling)

	loading := c.opts.LoadingEmoji
	if loading != "" {
		if err := c.deps.Transport.AddReaction(ctx, c.req.Channel, answer.ID, loading); err != nil {
			loading = ""
			c.warn(ctx, answer.ID, fmt.Sprintf("Failed to react to message, am I missing permissions?\n%v", err))
		}
	}

	result, err := c.deps.Compiler.Compile(ctx, models.CompileRequest{Code: source, Language: c.req.Language})
	if loading != "" {
		if rerr := c.deps.Transport.RemoveReaction(context.WithoutCancel(ctx), c.req.Channel, answer.ID, loading); rerr != nil {
			c.warn(ctx, answer.ID, fmt.Sprintf("Unable to remove reactions, am I missing permissions?\n%v", rerr))
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.compileFailure(err)
	}
	if result == nil {
		return nil, c.compileFailure(compiler.ErrMalformedResponse)
	}

	c.record(ctx, ch, cleaned, result)
	return result, nil
}

func (c *Controller) compileFailure(err error) error {
	if errors.Is(err, compiler.ErrMalformedResponse) {
		return newError(KindTransport, err, "Invalid Wandbox response \nPlease try again later")
	}
	return newError(KindTransport, err, "Wandbox request failure \n %v \nPlease try again later", err)
}

func (c *Controller) record(ctx context.Context, ch *models.Challenge, code string, result *models.CompileResult) {
	if c.deps.Journal != nil {
		rec := &models.CompilationRecord{
			SessionID:       c.id,
			OwnerID:         c.req.Owner.ID,
			OwnerTag:        c.req.Owner.Tag,
			ChannelID:       c.req.Channel,
			Language:        c.req.Language,
			Challenge:       ch.Name,
			Succeeded:       result.Succeeded(),
			Status:          result.Status,
			URL:             result.URL,
			CompilerMessage: result.CompilerMessage,
			Code:            code,
			CreatedAt:       time.Now(),
		}
		if err := c.deps.Journal.RecordCompilation(ctx, rec); err != nil {
			c.log().Error("failed to record compilation", "error", err)
		}
	}
	if c.deps.Stats != nil {
		if err := c.deps.Stats.IncrCompilation(ctx, c.req.Language, result.Succeeded()); err != nil {
			c.log().Warn("failed to count compilation", "error", err)
		}
	}
}

// --- SHOWING_RESULT / AWAITING_NEXT_ACTION ---

func (c *Controller) showResult(ctx context.Context, answer *chat.Message, result *models.CompileResult) (nextAction, error) {
	c.setState(models.StateShowingResult)

	c.mu.Lock()
	hasChallenge := c.challenge != nil
	c.lastName = c.challenge.Name
	c.mu.Unlock()

	msg, err := c.deps.Transport.Send(ctx, c.req.Channel, chat.Outgoing{
		Card:    c.deps.Presenter.Result(result, c.req.Language, c.req.Owner.Tag, false),
		ReplyTo: answer.ID,
	})
	if err != nil {
		return actionQuit, newError(KindTransport, err, "Failed to send the compilation result")
	}

	c.setState(models.StateAwaitingNextAction)
	res, err := c.reactions.Arm(ctx, gate.ReactionRequest{
		Channel:  c.req.Channel,
		Message:  msg.ID,
		UserID:   c.req.Owner.ID,
		Emojis:   present.ResultReactions(result, hasChallenge),
		Deadline: time.Now().Add(c.opts.ActionTimeout),
		OnAttachError: func(err error) {
			c.warn(ctx, msg.ID, fmt.Sprintf("Unable to react to message, am I missing permissions?\n%v", err))
		},
	})

	switch {
	case err == nil:
	case errors.Is(err, gate.ErrTimeout):
		c.clearReactions(ctx, msg.ID)
		expired := c.deps.Presenter.Result(result, c.req.Language, c.req.Owner.Tag, true)
		if _, err := c.deps.Transport.Edit(ctx, c.req.Channel, msg.ID, chat.Outgoing{Card: expired}); err != nil {
			c.log().Debug("failed to expire result card", "error", err)
		}
		return actionQuit, nil
	case errors.Is(err, gate.ErrAbandoned):
		return actionQuit, nil
	default:
		return actionQuit, err
	}

	c.clearReactions(ctx, msg.ID)
	switch res.Emoji {
	case present.EmojiRetry:
		c.log().Info("retrying challenge")
		c.retireDisplay(ctx)
		return actionRetry, nil
	case present.EmojiNext:
		c.log().Info("loading next challenge")
		c.retireDisplay(ctx)
		return actionNext, nil
	default:
		return actionQuit, nil
	}
}

// retireDisplay deletes the round's display and hint replies so the next
// round presents on a fresh message below the result. Hints shown in the
// retired round may be revealed again.
func (c *Controller) retireDisplay(ctx context.Context) {
	c.teardownDisplay(ctx)

	c.mu.Lock()
	c.display = nil
	c.hints = nil
	c.hintsShown = 0
	c.mu.Unlock()
}

// --- teardown & replies ---

// teardownDisplay deletes the display and every hint reply once.
func (c *Controller) teardownDisplay(ctx context.Context) {
	if !c.displayGone.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	display, hints := c.display, c.hints
	c.hints = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, teardownTimeout)
	defer cancel()

	if display != nil {
		if err := c.deps.Transport.Delete(ctx, c.req.Channel, display.ID); err != nil && !errors.Is(err, chat.ErrMessageNotFound) {
			c.log().Warn("failed to delete challenge message", "error", err)
		}
	}
	for _, h := range hints {
		if err := c.deps.Transport.Delete(ctx, c.req.Channel, h.ID); err != nil && !errors.Is(err, chat.ErrMessageNotFound) {
			c.log().Warn("failed to delete hint", "error", err)
		}
	}
}

// clearReactions removes every reaction, falling back to the bot's own when
// the bot may not manage messages.
func (c *Controller) clearReactions(ctx context.Context, messageID string) {
	err := c.deps.Transport.ClearReactions(ctx, c.req.Channel, messageID)
	if err == nil || errors.Is(err, chat.ErrMessageNotFound) {
		return
	}
	for _, emoji := range []string{present.EmojiHint, present.EmojiCancel, present.EmojiRetry, present.EmojiNext} {
		if err := c.deps.Transport.RemoveReaction(ctx, c.req.Channel, messageID, emoji); err != nil {
			c.log().Debug("failed to remove reaction", "emoji", emoji, "error", err)
		}
	}
}

func (c *Controller) warn(ctx context.Context, replyTo, text string) {
	c.log().Warn("session warning", "warning", text)
	if _, err := c.deps.Transport.Send(ctx, c.req.Channel, chat.Outgoing{
		Card:    c.deps.Presenter.Warning(text),
		ReplyTo: replyTo,
	}); err != nil {
		c.log().Warn("failed to post warning", "error", err)
	}
}

func (c *Controller) replyFailure(ctx context.Context, replyTo, text string) {
	if _, err := c.deps.Transport.Send(ctx, c.req.Channel, chat.Outgoing{
		Card:    c.deps.Presenter.Failure(text),
		ReplyTo: replyTo,
	}); err != nil {
		c.log().Warn("failed to post reply", "error", err)
	}
}

// report sends the single user-visible reply for a failed session.
func (c *Controller) report(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var se *Error
	if !errors.As(err, &se) {
		c.log().Error("session failed", "error", err)
		return
	}
	if se.Silent() {
		c.log().Info("session abandoned", "reason", se.Msg)
		return
	}

	c.log().Info("session ended", "kind", se.Kind, "reason", se.Msg, "error", se.Err)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	c.replyFailure(ctx, c.req.CommandID, se.Msg)
}

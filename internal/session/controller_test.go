package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/challenge-bot/internal/chat"
	"github.com/terra-clan/challenge-bot/internal/compiler"
	"github.com/terra-clan/challenge-bot/internal/models"
	"github.com/terra-clan/challenge-bot/internal/present"
)

const solution = "```py\ndef add(a, b):\n    return a + b\n```"

func TestSuccessfulCompileOffersCancelAndNext(t *testing.T) {
	h := newHarness(t)
	h.add(pyChallenge("Sum", 0))
	_, done := h.start(models.LangPython, nil)

	display := h.waitPresented()
	assert.Equal(t, "Sum", display.Card.Title)

	answer := h.hub.PostAs(channel, owner, solution)
	result := h.waitResult()
	assert.Equal(t, present.ColorSuccess, result.Card.Color)
	assert.Equal(t, answer.ID, result.ReplyTo)

	h.waitBotReaction(result.ID, present.EmojiNext)
	got, ok := h.hub.Get(channel, result.ID)
	require.True(t, ok)
	assert.Equal(t, []string{present.EmojiCancel, present.EmojiNext}, reactionEmojis(got))

	require.NoError(t, h.hub.ReactAs(channel, result.ID, owner, present.EmojiCancel))
	require.NoError(t, h.finish(done))

	reqs := h.comp.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "def add(a, b):\n    return a + b\n\nprint(add(1, 2) == 3)\n", reqs[0].Code)
	assert.Equal(t, models.LangPython, reqs[0].Language)

	recs := h.journal.records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Succeeded)
	assert.Equal(t, "Sum", recs[0].Challenge)
	assert.Equal(t, owner.Tag, recs[0].OwnerTag)

	stats, err := h.stats.CompilationStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.CompilationStats{{Language: models.LangPython, Succeeded: 1}}, stats)

	answerNow, _ := h.hub.Get(channel, answer.ID)
	assert.Empty(t, answerNow.Reactions, "loading reaction is removed")
	assert.Equal(t, 0, h.hub.Waiting())
}

func TestFailedCompileRetryReloadsSameChallenge(t *testing.T) {
	h := newHarness(t)
	h.comp.set(&models.CompileResult{Status: 1, ProgramMessage: "False\n"}, nil)
	h.add(pyChallenge("Alpha", 0))
	h.add(pyChallenge("Beta", 0))
	_, done := h.start(models.LangPython, nil)

	first := h.waitPresented()
	selects := h.cat.selects.Load()

	h.hub.PostAs(channel, owner, solution)
	result := h.waitResult()
	assert.Equal(t, present.ColorFailure, result.Card.Color)

	h.waitBotReaction(result.ID, present.EmojiNext)
	got, _ := h.hub.Get(channel, result.ID)
	assert.Equal(t, []string{present.EmojiCancel, present.EmojiRetry, present.EmojiNext}, reactionEmojis(got))

	require.NoError(t, h.hub.ReactAs(channel, result.ID, owner, present.EmojiRetry))

	second := h.waitPresented()
	assert.NotEqual(t, first.ID, second.ID, "retry presents on a new message")
	assert.Equal(t, first.Card.Title, second.Card.Title)
	assert.Equal(t, selects, h.cat.selects.Load(), "retry does not draw again")

	h.waitBotReaction(second.ID, present.EmojiCancel)
	require.NoError(t, h.hub.ReactAs(channel, second.ID, owner, present.EmojiCancel))
	require.NoError(t, h.finish(done))

	_, ok := h.hub.Get(channel, second.ID)
	assert.False(t, ok, "cancel deletes the display")
}

func TestNextDrawsAgainAtSameLevel(t *testing.T) {
	h := newHarness(t)
	h.add(pyChallenge("Zero", 0))
	h.add(pyChallenge("Alpha", 1))
	h.add(pyChallenge("Beta", 1))
	ctrl, done := h.start(models.LangPython, intPtr(1))

	h.waitPresented()
	selects := h.cat.selects.Load()

	h.hub.PostAs(channel, owner, solution)
	result := h.waitResult()
	h.waitBotReaction(result.ID, present.EmojiNext)
	require.NoError(t, h.hub.ReactAs(channel, result.ID, owner, present.EmojiNext))

	next := h.waitPresented()
	assert.Greater(t, h.cat.selects.Load(), selects)
	assert.Contains(t, []string{"Alpha", "Beta"}, next.Card.Title)

	info := ctrl.Info()
	require.NotNil(t, info.Level)
	assert.Equal(t, 1, *info.Level)
	assert.Equal(t, 2, info.Rounds)

	h.waitBotReaction(next.ID, present.EmojiCancel)
	require.NoError(t, h.hub.ReactAs(channel, next.ID, owner, present.EmojiCancel))
	require.NoError(t, h.finish(done))
}

type scriptedCatalog struct {
	draws []*models.Challenge
	calls int
}

func (s *scriptedCatalog) SelectRandom(*int, models.Language) (*models.Challenge, bool) {
	s.calls++
	if len(s.draws) == 0 {
		return nil, false
	}
	ch := s.draws[0]
	s.draws = s.draws[1:]
	return ch, true
}

func (s *scriptedCatalog) Synthesize(string, []string, models.Language) (string, bool) {
	return "", false
}

func TestSelectionAvoidsPreviousChallenge(t *testing.T) {
	a, b := pyChallenge("A", 0), pyChallenge("B", 0)
	cases := []struct {
		name      string
		draws     []*models.Challenge
		want      string
		wantCalls int
	}{
		{name: "different on first draw", draws: []*models.Challenge{b}, want: "B", wantCalls: 1},
		{name: "different on fourth draw", draws: []*models.Challenge{a, a, a, b}, want: "B", wantCalls: 4},
		{name: "repeat accepted on fourth draw", draws: []*models.Challenge{a, a, a, a, b}, want: "A", wantCalls: 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := &scriptedCatalog{draws: tc.draws}
			ctrl := NewController(Deps{Catalog: sc, Presenter: present.New(";", "")}, DefaultOptions(), Request{Language: models.LangPython})
			ctrl.lastName = "A"

			require.NoError(t, ctrl.selectChallenge(context.Background()))
			assert.Equal(t, tc.want, ctrl.challenge.Name)
			assert.Equal(t, tc.wantCalls, sc.calls)
		})
	}
}

func TestNoLevelConvergesOnOnlyPopulatedLevel(t *testing.T) {
	h := newHarness(t)
	h.add(pyChallenge("Deep", 2))
	ctrl, done := h.start(models.LangPython, nil)

	display := h.waitPresented()
	level, _ := display.Card.Field("Level")
	assert.Equal(t, "2 (medium)", level.Value)
	info := ctrl.Info()
	require.NotNil(t, info.Level)
	assert.Equal(t, 2, *info.Level)

	h.waitBotReaction(display.ID, present.EmojiCancel)
	require.NoError(t, h.hub.ReactAs(channel, display.ID, owner, present.EmojiCancel))
	require.NoError(t, h.finish(done))
}

func TestMissingTemplateRepliesSynthesisFailure(t *testing.T) {
	h := newHarness(t)
	rb := pyChallenge("Ruby Sum", 0)
	rb.Languages = []models.Language{models.LangRuby}
	rb.Tests = map[models.Language][]string{models.LangRuby: {"add(1, 2) == 3"}}
	h.add(rb)
	_, done := h.start(models.LangRuby, nil)

	h.waitPresented()
	h.hub.PostAs(channel, owner, "```rb\ndef add(a, b) = a + b\n```")

	err := h.finish(done)
	require.Error(t, err)
	assert.Equal(t, KindSynthesis, KindOf(err))
	assert.Len(t, h.botMessages("no template"), 1)
	assert.Empty(t, h.comp.requests())
	assert.Empty(t, h.botMessages("Compilation Results"))
}

func TestAnswerTimeoutRepliesOnce(t *testing.T) {
	h := newHarness(t)
	h.opts.AnswerTimeout = 150 * time.Millisecond
	h.add(pyChallenge("Sum", 0, "use +"))
	_, done := h.start(models.LangPython, nil)

	display := h.waitPresented()
	err := h.finish(done)
	assert.Equal(t, KindTimeout, KindOf(err))

	assert.Len(t, h.botMessages("Question Timeout"), 1)
	assert.Equal(t, 0, h.hub.Waiting(), "no listener stays armed")

	got, ok := h.hub.Get(channel, display.ID)
	require.True(t, ok)
	assert.Empty(t, got.Reactions)
}

func TestCancelDeletesDisplayAndHintsOnce(t *testing.T) {
	h := newHarness(t)
	h.add(pyChallenge("Sum", 0, "first", "second"))
	ctrl, done := h.start(models.LangPython, nil)

	display := h.waitPresented()
	h.waitBotReaction(display.ID, present.EmojiCancel)

	require.NoError(t, h.hub.ReactAs(channel, display.ID, owner, present.EmojiHint))
	hint := h.waitFor("hint", func(ev chat.Event) bool {
		return ev.Type == chat.EventMessageCreated && fromBot(ev) && ev.Message.Card.Title == "Hint 1/2"
	}).Message
	assert.Equal(t, display.ID, hint.ReplyTo)
	h.waitCleared(display.ID)
	h.waitBotReaction(display.ID, present.EmojiCancel)

	require.NoError(t, h.hub.ReactAs(channel, display.ID, owner, present.EmojiCancel))
	require.NoError(t, h.finish(done))

	assert.EqualValues(t, 2, h.tr.deletes.Load())
	_, ok := h.hub.Get(channel, display.ID)
	assert.False(t, ok)
	_, ok = h.hub.Get(channel, hint.ID)
	assert.False(t, ok)

	require.ErrorIs(t, h.hub.ReactAs(channel, display.ID, owner, present.EmojiCancel), chat.ErrMessageNotFound)
	ctrl.teardownDisplay(context.Background())
	assert.EqualValues(t, 2, h.tr.deletes.Load())
}

func TestHintsRevealedInAuthoredOrder(t *testing.T) {
	h := newHarness(t)
	hints := []string{"first", "second", "third"}
	h.add(pyChallenge("Sum", 0, hints...))
	ctrl, done := h.start(models.LangPython, nil)

	display := h.waitPresented()
	h.waitBotReaction(display.ID, present.EmojiCancel)

	for i, want := range hints {
		require.NoError(t, h.hub.ReactAs(channel, display.ID, owner, present.EmojiHint))
		title := fmt.Sprintf("Hint %d/%d", i+1, len(hints))
		ev := h.waitFor(title, func(ev chat.Event) bool {
			return ev.Type == chat.EventMessageCreated && fromBot(ev) && ev.Message.Card.Title == title
		})
		assert.Equal(t, want, ev.Message.Card.Description)
		h.waitCleared(display.ID)
		h.waitBotReaction(display.ID, present.EmojiCancel)
	}

	got, _ := h.hub.Get(channel, display.ID)
	assert.Equal(t, []string{present.EmojiCancel}, reactionEmojis(got), "no hint offered once exhausted")
	assert.Equal(t, 0, ctrl.Info().HintsRemaining)

	require.NoError(t, h.hub.ReactAs(channel, display.ID, owner, present.EmojiCancel))
	require.NoError(t, h.finish(done))
}

func TestCompileGatewayFailure(t *testing.T) {
	h := newHarness(t)
	h.comp.set(nil, fmt.Errorf("%w: connection refused", compiler.ErrRequest))
	h.add(pyChallenge("Sum", 0))
	_, done := h.start(models.LangPython, nil)

	h.waitPresented()
	answer := h.hub.PostAs(channel, owner, solution)

	err := h.finish(done)
	assert.Equal(t, KindTransport, KindOf(err))
	require.Len(t, h.botMessages("Wandbox request failure"), 1)

	got, _ := h.hub.Get(channel, answer.ID)
	assert.Empty(t, got.Reactions)
	assert.Empty(t, h.journal.records())
}

func TestMalformedCompileResponse(t *testing.T) {
	h := newHarness(t)
	h.comp.set(nil, compiler.ErrMalformedResponse)
	h.add(pyChallenge("Sum", 0))
	_, done := h.start(models.LangPython, nil)

	h.waitPresented()
	h.hub.PostAs(channel, owner, solution)

	assert.Equal(t, KindTransport, KindOf(h.finish(done)))
	assert.Len(t, h.botMessages("Invalid Wandbox response"), 1)
}

func TestLanguageUnsupportedByCompiler(t *testing.T) {
	h := newHarness(t)
	h.comp.langs = []models.Language{models.LangJavaScript}
	h.add(pyChallenge("Sum", 0))
	_, done := h.start(models.LangPython, nil)

	assert.Equal(t, KindUserInput, KindOf(h.finish(done)))
	assert.Len(t, h.botMessages("You must input a valid language"), 1)
	assert.Empty(t, h.botMessages("Finding Coding Challenge"))
}

func TestNotFoundRemovesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.add(pyChallenge("Sum", 0))
	_, done := h.start(models.LangPython, intPtr(3))

	assert.Equal(t, KindNotFound, KindOf(h.finish(done)))
	assert.Len(t, h.botMessages("Couldn't find any challenges"), 1)
	assert.Empty(t, h.botMessages("Finding Coding Challenge"))
}

func TestMessageWithoutCodeKeepsWaiting(t *testing.T) {
	h := newHarness(t)
	h.add(pyChallenge("Sum", 0))
	_, done := h.start(models.LangPython, nil)

	h.waitPresented()
	chatter := h.hub.PostAs(channel, owner, "hmm, let me think")
	reply := h.waitReply("You must attach codeblocks")
	assert.Equal(t, chatter.ID, reply.ReplyTo)

	h.hub.PostAs(channel, owner, solution)
	result := h.waitResult()
	h.waitBotReaction(result.ID, present.EmojiNext)
	require.NoError(t, h.hub.ReactAs(channel, result.ID, owner, present.EmojiCancel))
	require.NoError(t, h.finish(done))
}

func TestResultMenuTimeoutExpiresCard(t *testing.T) {
	h := newHarness(t)
	h.opts.ActionTimeout = 150 * time.Millisecond
	h.comp.set(&models.CompileResult{Status: 1}, nil)
	h.add(pyChallenge("Sum", 0))
	_, done := h.start(models.LangPython, nil)

	h.waitPresented()
	h.hub.PostAs(channel, owner, solution)
	result := h.waitResult()

	require.NoError(t, h.finish(done))

	got, ok := h.hub.Get(channel, result.ID)
	require.True(t, ok)
	assert.Empty(t, got.Reactions)
	_, hasHint := got.Card.Field("Incorrect!")
	assert.False(t, hasHint, "expired card drops the retry hint")
	require.NotNil(t, got.EditedAt)
}

func TestMissingPermissionsAreWarnings(t *testing.T) {
	h := newHarness(t)
	h.hub.SetPermissions(channel, chat.Permissions{})
	h.add(pyChallenge("Sum", 0))
	_, done := h.start(models.LangPython, nil)

	display := h.waitPresented()
	warning := h.waitReply("Failed to react to message")
	assert.Equal(t, display.ID, warning.ReplyTo)

	h.hub.PostAs(channel, owner, solution)
	result := h.waitResult()
	shown := time.Now()

	// The menu warning is posted while the owner can still choose.
	warning = h.waitReply("Unable to react to message")
	assert.Equal(t, result.ID, warning.ReplyTo)
	assert.Less(t, time.Since(shown), h.opts.ActionTimeout)

	require.NoError(t, h.hub.ReactAs(channel, result.ID, owner, present.EmojiCancel))
	require.NoError(t, h.finish(done))

	assert.Len(t, h.botMessages("Failed to react to message"), 2, "challenge card and loading reaction")
	assert.Len(t, h.botMessages("Unable to react to message"), 1)
	assert.Len(t, h.comp.requests(), 1)
}

func TestRetryRemovesPreviousRoundMessages(t *testing.T) {
	h := newHarness(t)
	h.comp.set(&models.CompileResult{Status: 1}, nil)
	h.add(pyChallenge("Sum", 0, "only"))
	ctrl, done := h.start(models.LangPython, nil)

	first := h.waitPresented()
	h.waitBotReaction(first.ID, present.EmojiCancel)
	require.NoError(t, h.hub.ReactAs(channel, first.ID, owner, present.EmojiHint))
	hint := h.waitFor("hint", func(ev chat.Event) bool {
		return ev.Type == chat.EventMessageCreated && fromBot(ev) && ev.Message.Card.Title == "Hint 1/1"
	}).Message
	h.waitCleared(first.ID)
	h.waitBotReaction(first.ID, present.EmojiCancel)

	h.hub.PostAs(channel, owner, solution)
	result := h.waitResult()
	h.waitBotReaction(result.ID, present.EmojiNext)
	require.NoError(t, h.hub.ReactAs(channel, result.ID, owner, present.EmojiRetry))

	second := h.waitPresented()
	require.NotEqual(t, first.ID, second.ID)
	_, ok := h.hub.Get(channel, first.ID)
	assert.False(t, ok, "previous challenge card is deleted")
	_, ok = h.hub.Get(channel, hint.ID)
	assert.False(t, ok, "previous hint is deleted")
	assert.Equal(t, 1, ctrl.Info().HintsRemaining)

	h.waitBotReaction(second.ID, present.EmojiCancel)
	require.NoError(t, h.hub.ReactAs(channel, second.ID, owner, present.EmojiCancel))
	require.NoError(t, h.finish(done))

	_, ok = h.hub.Get(channel, second.ID)
	assert.False(t, ok)
	_, ok = h.hub.Get(channel, result.ID)
	assert.True(t, ok, "results stay in the channel")
	assert.EqualValues(t, 3, h.tr.deletes.Load())
}

func TestExternalCancelIsSilent(t *testing.T) {
	h := newHarness(t)
	h.add(pyChallenge("Sum", 0))
	cmd := h.hub.PostAs(channel, owner, ";challenge python")
	ctrl := NewController(h.deps(), h.opts, Request{Owner: owner, Channel: channel, Language: models.LangPython, CommandID: cmd.ID})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	display := h.waitPresented()
	cancel()

	err := h.finish(done)
	assert.Equal(t, KindAbandoned, KindOf(err))
	_, ok := h.hub.Get(channel, display.ID)
	assert.False(t, ok)
	assert.Empty(t, h.botMessages("Timeout"))
	assert.Equal(t, models.StateTerminated, ctrl.Info().State)
}

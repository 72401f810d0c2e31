package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bot   = User{ID: "bot", Tag: "ChallengeBot#0001"}
	alice = User{ID: "u1", Tag: "alice#1234"}
	bob   = User{ID: "u2", Tag: "bob#5678"}
)

func TestHubSendEditDelete(t *testing.T) {
	ctx := context.Background()
	h := NewHub(bot)

	msg, err := h.Send(ctx, "general", Outgoing{Card: &Card{Title: "Finding"}})
	require.NoError(t, err)
	assert.Equal(t, bot, msg.Author)

	edited, err := h.Edit(ctx, "general", msg.ID, Outgoing{Card: &Card{Title: "Sum Two"}})
	require.NoError(t, err)
	assert.Equal(t, "Sum Two", edited.Card.Title)
	assert.Equal(t, msg.Seq, edited.Seq)
	require.NotNil(t, edited.EditedAt)

	other := h.PostAs("general", alice, "hi")
	_, err = h.Edit(ctx, "general", other.ID, Outgoing{Content: "x"})
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, h.Delete(ctx, "general", msg.ID))
	require.ErrorIs(t, h.Delete(ctx, "general", msg.ID), ErrMessageNotFound)
	_, ok := h.Get("general", msg.ID)
	assert.False(t, ok)

	_, err = h.Edit(ctx, "general", msg.ID, Outgoing{Content: "x"})
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestHubPermissions(t *testing.T) {
	ctx := context.Background()
	h := NewHub(bot)
	h.SetPermissions("locked", Permissions{})

	msg, err := h.Send(ctx, "locked", Outgoing{Content: "hello"})
	require.NoError(t, err)

	require.ErrorIs(t, h.AddReaction(ctx, "locked", msg.ID, "💡"), ErrForbidden)
	require.ErrorIs(t, h.ClearReactions(ctx, "locked", msg.ID), ErrForbidden)

	theirs := h.PostAs("locked", alice, "code")
	require.ErrorIs(t, h.Delete(ctx, "locked", theirs.ID), ErrForbidden)
	require.NoError(t, h.Delete(ctx, "locked", msg.ID), "own messages can always be deleted")
}

func TestHubReactions(t *testing.T) {
	ctx := context.Background()
	h := NewHub(bot)

	msg, err := h.Send(ctx, "general", Outgoing{Content: "pick"})
	require.NoError(t, err)

	require.NoError(t, h.AddReaction(ctx, "general", msg.ID, "💡"))
	require.NoError(t, h.AddReaction(ctx, "general", msg.ID, "🚫"))
	require.NoError(t, h.ReactAs("general", msg.ID, alice, "💡"))
	require.NoError(t, h.ReactAs("general", msg.ID, alice, "💡"))

	got, _ := h.Get("general", msg.ID)
	require.Len(t, got.Reactions, 2)
	assert.Equal(t, ReactionSummary{Emoji: "💡", Users: []string{"bot", "u1"}}, got.Reactions[0])

	require.NoError(t, h.RemoveReaction(ctx, "general", msg.ID, "💡"))
	require.NoError(t, h.UnreactAs("general", msg.ID, alice, "💡"))
	got, _ = h.Get("general", msg.ID)
	assert.Equal(t, []ReactionSummary{{Emoji: "🚫", Users: []string{"bot"}}}, got.Reactions)

	require.NoError(t, h.ClearReactions(ctx, "general", msg.ID))
	got, _ = h.Get("general", msg.ID)
	assert.Empty(t, got.Reactions)
}

func TestNextReactionWaitsForOwner(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h := NewHub(bot)
	msg, _ := h.Send(ctx, "general", Outgoing{Content: "pick"})

	done := make(chan Reaction, 1)
	go func() {
		r, err := h.NextReaction(ctx, ReactionQuery{Channel: "general", Message: msg.ID, UserID: alice.ID, Emojis: []string{"💡", "🚫"}})
		if err == nil {
			done <- r
		}
		close(done)
	}()

	require.Eventually(t, func() bool { return h.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.ReactAs("general", msg.ID, bob, "🚫"))
	require.NoError(t, h.ReactAs("general", msg.ID, alice, "👍"))
	require.NoError(t, h.ReactAs("general", msg.ID, alice, "🚫"))

	r, ok := <-done
	require.True(t, ok)
	assert.Equal(t, "🚫", r.Emoji)
	assert.Equal(t, alice, r.User)
	assert.Equal(t, 0, h.Waiting())
}

func TestNextReactionCountsExistingReaction(t *testing.T) {
	ctx := context.Background()
	h := NewHub(bot)
	msg, _ := h.Send(ctx, "general", Outgoing{Content: "pick"})
	require.NoError(t, h.ReactAs("general", msg.ID, alice, "▶"))

	r, err := h.NextReaction(ctx, ReactionQuery{Channel: "general", Message: msg.ID, UserID: alice.ID, Emojis: []string{"🚫", "▶"}})
	require.NoError(t, err)
	assert.Equal(t, "▶", r.Emoji)
}

func TestNextReactionAbandonedOnDelete(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h := NewHub(bot)
	msg, _ := h.Send(ctx, "general", Outgoing{Content: "pick"})

	errs := make(chan error, 1)
	go func() {
		_, err := h.NextReaction(ctx, ReactionQuery{Channel: "general", Message: msg.ID, UserID: alice.ID, Emojis: []string{"🚫"}})
		errs <- err
	}()

	require.Eventually(t, func() bool { return h.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.Delete(ctx, "general", msg.ID))
	require.ErrorIs(t, <-errs, ErrMessageNotFound)

	_, err := h.NextReaction(ctx, ReactionQuery{Channel: "general", Message: msg.ID, UserID: alice.ID, Emojis: []string{"🚫"}})
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestNextReactionDeadline(t *testing.T) {
	h := NewHub(bot)
	msg, _ := h.Send(context.Background(), "general", Outgoing{Content: "pick"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.NextReaction(ctx, ReactionQuery{Channel: "general", Message: msg.ID, UserID: alice.ID, Emojis: []string{"🚫"}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, h.Waiting())
}

func TestNextMessageHonoursCursor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h := NewHub(bot)

	h.PostAs("general", alice, "too early")
	display, _ := h.Send(ctx, "general", Outgoing{Content: "challenge"})
	h.PostAs("other", alice, "wrong channel")
	h.PostAs("general", bob, "wrong author")
	answer := h.PostAs("general", alice, "```py\nprint(1)\n```")

	got, err := h.NextMessage(ctx, MessageQuery{Channel: "general", AuthorID: alice.ID, After: display.Seq})
	require.NoError(t, err)
	assert.Equal(t, answer.ID, got.ID)

	next := make(chan *Message, 1)
	go func() {
		m, _ := h.NextMessage(ctx, MessageQuery{Channel: "general", AuthorID: alice.ID, After: answer.Seq})
		next <- m
	}()
	require.Eventually(t, func() bool { return h.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	later := h.PostAs("general", alice, "second")
	assert.Equal(t, later.ID, (<-next).ID)
}

func TestHubForgetsDeletedMessages(t *testing.T) {
	ctx := context.Background()
	h := NewHub(bot)

	keep := h.PostAs("general", alice, "keep")
	gone, err := h.Send(ctx, "general", Outgoing{Content: "gone"})
	require.NoError(t, err)
	require.NoError(t, h.Delete(ctx, "general", gone.ID))

	h.mu.Lock()
	assert.Len(t, h.messages, 1)
	assert.Len(t, h.channels["general"], 1)
	h.mu.Unlock()

	require.ErrorIs(t, h.Delete(ctx, "general", gone.ID), ErrMessageNotFound)
	require.NoError(t, h.Delete(ctx, "general", keep.ID))

	h.mu.Lock()
	assert.Empty(t, h.messages)
	assert.Empty(t, h.channels)
	h.mu.Unlock()
}

func TestHubHistoryLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h := NewHub(bot, WithHistoryLimit(3))

	first := h.PostAs("general", alice, "one")
	h.PostAs("general", alice, "two")
	h.PostAs("other", alice, "elsewhere")
	h.PostAs("general", alice, "three")
	last := h.PostAs("general", alice, "four")

	var contents []string
	for _, m := range h.History("general", 0) {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"two", "three", "four"}, contents)
	assert.Len(t, h.History("other", 0), 1)

	_, ok := h.Get("general", first.ID)
	assert.False(t, ok, "evicted messages behave as deleted")
	require.ErrorIs(t, h.ReactAs("general", first.ID, bob, "👍"), ErrMessageNotFound)

	got, err := h.NextMessage(ctx, MessageQuery{Channel: "general", AuthorID: alice.ID, After: first.Seq})
	require.NoError(t, err)
	assert.Equal(t, "two", got.Content)

	got, err = h.NextMessage(ctx, MessageQuery{Channel: "general", AuthorID: alice.ID, After: last.Seq - 1})
	require.NoError(t, err)
	assert.Equal(t, last.ID, got.ID)
}

func TestSubscribe(t *testing.T) {
	h := NewHub(bot)
	events, cancel := h.Subscribe(8)

	msg := h.PostAs("general", alice, "hello")
	require.NoError(t, h.ReactAs("general", msg.ID, bob, "👍"))

	ev := <-events
	assert.Equal(t, EventMessageCreated, ev.Type)
	assert.Equal(t, "hello", ev.Message.Content)
	ev = <-events
	assert.Equal(t, EventReactionAdded, ev.Type)
	assert.Equal(t, bob, ev.Reaction.User)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
}

func TestFetchAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/code.py":
			w.Write([]byte("print('hi')"))
		case "/big.py":
			w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	h := NewHub(bot, WithAttachmentLimit(32))

	got, err := h.FetchAttachment(ctx, Attachment{Name: "inline.py", Content: []byte("x = 1")})
	require.NoError(t, err)
	assert.Equal(t, "x = 1", got)

	got, err = h.FetchAttachment(ctx, Attachment{Name: "code.py", URL: srv.URL + "/code.py"})
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", got)

	_, err = h.FetchAttachment(ctx, Attachment{Name: "big.py", URL: srv.URL + "/big.py"})
	require.ErrorIs(t, err, ErrAttachment)

	_, err = h.FetchAttachment(ctx, Attachment{Name: "gone.py", URL: srv.URL + "/gone.py"})
	require.ErrorIs(t, err, ErrAttachment)
}

package chat

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a change in the hub
type EventType string

const (
	EventMessageCreated   EventType = "message_created"
	EventMessageUpdated   EventType = "message_updated"
	EventMessageDeleted   EventType = "message_deleted"
	EventReactionAdded    EventType = "reaction_added"
	EventReactionRemoved  EventType = "reaction_removed"
	EventReactionsCleared EventType = "reactions_cleared"
)

// Event is published to subscribers for every change.
type Event struct {
	Type      EventType `json:"type"`
	Channel   string    `json:"channel"`
	MessageID string    `json:"message_id"`
	Message   *Message  `json:"message,omitempty"`
	Reaction  *Reaction `json:"reaction,omitempty"`
}

// Permissions granted to the bot in a channel. Channels without an entry
// grant everything.
type Permissions struct {
	AddReactions   bool `json:"add_reactions"`
	ManageMessages bool `json:"manage_messages"`
}

var allPermissions = Permissions{AddReactions: true, ManageMessages: true}

type storedMessage struct {
	msg       Message
	reactions map[string][]User // emoji -> users in reaction order
	order     []string          // emojis in first-reaction order
}

func (s *storedMessage) hasReaction(emoji, userID string) bool {
	return slices.ContainsFunc(s.reactions[emoji], func(u User) bool { return u.ID == userID })
}

func (s *storedMessage) snapshot() *Message {
	out := s.msg
	out.Card = s.msg.Card.clone()
	out.Attachments = append([]Attachment(nil), s.msg.Attachments...)
	out.Reactions = nil
	for _, emoji := range s.order {
		users := s.reactions[emoji]
		if len(users) == 0 {
			continue
		}
		ids := make([]string, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		out.Reactions = append(out.Reactions, ReactionSummary{Emoji: emoji, Users: ids})
	}
	return &out
}

type waiter struct {
	match func(Event) bool
	ch    chan Event
}

type subscriber struct {
	ch chan Event
}

// Hub is an in-process chat server. It implements Transport for the bot user
// and lets other participants post and react through the *As methods.
type Hub struct {
	bot             User
	client          *http.Client
	attachmentLimit int64
	historyLimit    int

	mu       sync.Mutex
	seq      uint64
	messages map[string]*storedMessage
	channels map[string][]*storedMessage // live messages in seq order
	perms    map[string]Permissions
	waiters  map[*waiter]struct{}
	subs     map[*subscriber]struct{}
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithHTTPClient sets the client used to fetch attachments by URL
func WithHTTPClient(c *http.Client) HubOption {
	return func(h *Hub) {
		h.client = c
	}
}

// WithAttachmentLimit caps fetched attachment size in bytes
func WithAttachmentLimit(n int64) HubOption {
	return func(h *Hub) {
		h.attachmentLimit = n
	}
}

// WithHistoryLimit caps how many live messages a channel keeps. Older
// messages are forgotten and behave as deleted. n <= 0 keeps everything.
func WithHistoryLimit(n int) HubOption {
	return func(h *Hub) {
		h.historyLimit = n
	}
}

// NewHub creates a hub in which bot is the transport's own identity.
func NewHub(bot User, opts ...HubOption) *Hub {
	h := &Hub{
		bot:             bot,
		client:          &http.Client{Timeout: 10 * time.Second},
		attachmentLimit: 1 << 20,
		historyLimit:    1000,
		messages:        make(map[string]*storedMessage),
		channels:        make(map[string][]*storedMessage),
		perms:           make(map[string]Permissions),
		waiters:         make(map[*waiter]struct{}),
		subs:            make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Bot returns the hub's own identity
func (h *Hub) Bot() User {
	return h.bot
}

// SetPermissions restricts what the bot may do in channel.
func (h *Hub) SetPermissions(channel string, p Permissions) {
	h.mu.Lock()
	h.perms[channel] = p
	h.mu.Unlock()
}

func (h *Hub) permissions(channel string) Permissions {
	if p, ok := h.perms[channel]; ok {
		return p
	}
	return allPermissions
}

// Subscribe returns a stream of every hub event. Events are dropped for a
// subscriber whose buffer is full. Call cancel to unsubscribe.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, buffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// publish must be called with h.mu held.
func (h *Hub) publish(ev Event) {
	for w := range h.waiters {
		if w.match(ev) {
			w.ch <- ev
			delete(h.waiters, w)
		}
	}
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("dropping chat event for slow subscriber", "type", ev.Type, "channel", ev.Channel)
		}
	}
}

// await registers a one-shot waiter; w must be registered under h.mu.
func (h *Hub) await(ctx context.Context, w *waiter) (Event, error) {
	select {
	case ev := <-w.ch:
		return ev, nil
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.waiters, w)
		h.mu.Unlock()
		// A match may have landed between ctx ending and the removal.
		select {
		case ev := <-w.ch:
			return ev, nil
		default:
		}
		return Event{}, ctx.Err()
	}
}

func (h *Hub) lookup(channel, id string) (*storedMessage, error) {
	m, ok := h.messages[id]
	if !ok || m.msg.Channel != channel {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return m, nil
}

func (h *Hub) post(channel string, author User, content string, card *Card, replyTo string, attachments []Attachment) *Message {
	h.seq++
	m := &storedMessage{
		msg: Message{
			ID:          uuid.NewString(),
			Seq:         h.seq,
			Channel:     channel,
			Author:      author,
			Content:     content,
			Card:        card.clone(),
			Attachments: append([]Attachment(nil), attachments...),
			ReplyTo:     replyTo,
			CreatedAt:   time.Now(),
		},
		reactions: make(map[string][]User),
	}
	h.messages[m.msg.ID] = m
	h.channels[channel] = append(h.channels[channel], m)
	h.evict(channel)

	snap := m.snapshot()
	h.publish(Event{Type: EventMessageCreated, Channel: channel, MessageID: snap.ID, Message: snap})
	return snap
}

// Send posts a message as the bot.
func (h *Hub) Send(ctx context.Context, channel string, out Outgoing) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.post(channel, h.bot, out.Content, out.Card, out.ReplyTo, nil), nil
}

// PostAs posts a message on behalf of a participant.
func (h *Hub) PostAs(channel string, author User, content string, attachments ...Attachment) *Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.post(channel, author, content, nil, "", attachments)
}

// Edit replaces the body of one of the bot's messages.
func (h *Hub) Edit(ctx context.Context, channel, id string, out Outgoing) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	m, err := h.lookup(channel, id)
	if err != nil {
		return nil, err
	}
	if m.msg.Author.ID != h.bot.ID {
		return nil, fmt.Errorf("%w: cannot edit another user's message", ErrForbidden)
	}

	now := time.Now()
	m.msg.Content = out.Content
	m.msg.Card = out.Card.clone()
	m.msg.EditedAt = &now

	snap := m.snapshot()
	h.publish(Event{Type: EventMessageUpdated, Channel: channel, MessageID: id, Message: snap})
	return snap, nil
}

// Delete removes a message. Deleting another user's message requires
// ManageMessages.
func (h *Hub) Delete(ctx context.Context, channel, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	m, err := h.lookup(channel, id)
	if err != nil {
		return err
	}
	if m.msg.Author.ID != h.bot.ID && !h.permissions(channel).ManageMessages {
		return fmt.Errorf("%w: manage messages", ErrForbidden)
	}

	h.forget(m)
	h.publish(Event{Type: EventMessageDeleted, Channel: channel, MessageID: id})
	return nil
}

// channelIndex returns the position of the first message in channel with a
// sequence number of at least seq.
func (h *Hub) channelIndex(channel string, seq uint64) int {
	i, _ := slices.BinarySearchFunc(h.channels[channel], seq, func(m *storedMessage, seq uint64) int {
		return cmp.Compare(m.msg.Seq, seq)
	})
	return i
}

// forget drops a message from both indexes.
func (h *Hub) forget(m *storedMessage) {
	delete(h.messages, m.msg.ID)
	msgs := h.channels[m.msg.Channel]
	if i := h.channelIndex(m.msg.Channel, m.msg.Seq); i < len(msgs) && msgs[i] == m {
		msgs = slices.Delete(msgs, i, i+1)
	}
	if len(msgs) == 0 {
		delete(h.channels, m.msg.Channel)
		return
	}
	h.channels[m.msg.Channel] = msgs
}

// evict forgets the oldest messages of channel beyond the history limit.
func (h *Hub) evict(channel string) {
	msgs := h.channels[channel]
	excess := len(msgs) - h.historyLimit
	if h.historyLimit <= 0 || excess <= 0 {
		return
	}
	for _, m := range msgs[:excess] {
		delete(h.messages, m.msg.ID)
	}
	h.channels[channel] = slices.Delete(msgs, 0, excess)
}

// AddReaction reacts as the bot.
func (h *Hub) AddReaction(ctx context.Context, channel, id, emoji string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.permissions(channel).AddReactions {
		return fmt.Errorf("%w: add reactions", ErrForbidden)
	}
	return h.react(channel, id, h.bot, emoji)
}

// ReactAs reacts on behalf of a participant.
func (h *Hub) ReactAs(channel, id string, user User, emoji string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.react(channel, id, user, emoji)
}

func (h *Hub) react(channel, id string, user User, emoji string) error {
	m, err := h.lookup(channel, id)
	if err != nil {
		return err
	}
	if m.hasReaction(emoji, user.ID) {
		return nil
	}
	if _, ok := m.reactions[emoji]; !ok {
		m.order = append(m.order, emoji)
	}
	m.reactions[emoji] = append(m.reactions[emoji], user)

	h.publish(Event{
		Type:      EventReactionAdded,
		Channel:   channel,
		MessageID: id,
		Reaction:  &Reaction{Channel: channel, Message: id, User: user, Emoji: emoji},
	})
	return nil
}

// RemoveReaction removes the bot's own reaction.
func (h *Hub) RemoveReaction(ctx context.Context, channel, id, emoji string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unreact(channel, id, h.bot, emoji)
}

// UnreactAs withdraws a participant's reaction.
func (h *Hub) UnreactAs(channel, id string, user User, emoji string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unreact(channel, id, user, emoji)
}

func (h *Hub) unreact(channel, id string, user User, emoji string) error {
	m, err := h.lookup(channel, id)
	if err != nil {
		return err
	}
	users := m.reactions[emoji]
	i := slices.IndexFunc(users, func(u User) bool { return u.ID == user.ID })
	if i < 0 {
		return nil
	}
	m.reactions[emoji] = slices.Delete(users, i, i+1)

	h.publish(Event{
		Type:      EventReactionRemoved,
		Channel:   channel,
		MessageID: id,
		Reaction:  &Reaction{Channel: channel, Message: id, User: user, Emoji: emoji},
	})
	return nil
}

// ClearReactions removes every reaction; requires ManageMessages.
func (h *Hub) ClearReactions(ctx context.Context, channel, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	m, err := h.lookup(channel, id)
	if err != nil {
		return err
	}
	if !h.permissions(channel).ManageMessages {
		return fmt.Errorf("%w: manage messages", ErrForbidden)
	}

	m.reactions = make(map[string][]User)
	m.order = nil
	h.publish(Event{Type: EventReactionsCleared, Channel: channel, MessageID: id})
	return nil
}

// NextReaction implements Transport.
func (h *Hub) NextReaction(ctx context.Context, q ReactionQuery) (Reaction, error) {
	h.mu.Lock()
	m, err := h.lookup(q.Channel, q.Message)
	if err != nil {
		h.mu.Unlock()
		return Reaction{}, err
	}
	for _, emoji := range q.Emojis {
		for _, u := range m.reactions[emoji] {
			if u.ID == q.UserID {
				h.mu.Unlock()
				return Reaction{Channel: q.Channel, Message: q.Message, User: u, Emoji: emoji}, nil
			}
		}
	}

	w := &waiter{
		ch: make(chan Event, 1),
		match: func(ev Event) bool {
			if ev.MessageID != q.Message {
				return false
			}
			if ev.Type == EventMessageDeleted {
				return true
			}
			return ev.Type == EventReactionAdded &&
				ev.Reaction.User.ID == q.UserID &&
				slices.Contains(q.Emojis, ev.Reaction.Emoji)
		},
	}
	h.waiters[w] = struct{}{}
	h.mu.Unlock()

	ev, err := h.await(ctx, w)
	if err != nil {
		return Reaction{}, err
	}
	if ev.Type == EventMessageDeleted {
		return Reaction{}, fmt.Errorf("%w: %s", ErrMessageNotFound, q.Message)
	}
	return *ev.Reaction, nil
}

// NextMessage implements Transport.
func (h *Hub) NextMessage(ctx context.Context, q MessageQuery) (*Message, error) {
	matches := func(m *Message) bool {
		return m.Channel == q.Channel && m.Author.ID == q.AuthorID && m.Seq > q.After
	}

	h.mu.Lock()
	msgs := h.channels[q.Channel]
	for _, m := range msgs[h.channelIndex(q.Channel, q.After+1):] {
		if matches(&m.msg) {
			snap := m.snapshot()
			h.mu.Unlock()
			return snap, nil
		}
	}

	w := &waiter{
		ch: make(chan Event, 1),
		match: func(ev Event) bool {
			return ev.Type == EventMessageCreated && matches(ev.Message)
		},
	}
	h.waiters[w] = struct{}{}
	h.mu.Unlock()

	ev, err := h.await(ctx, w)
	if err != nil {
		return nil, err
	}
	return ev.Message, nil
}

// FetchAttachment returns inline content or downloads a.URL.
func (h *Hub) FetchAttachment(ctx context.Context, a Attachment) (string, error) {
	if a.Content != nil {
		if int64(len(a.Content)) > h.attachmentLimit {
			return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrAttachment, a.Name, h.attachmentLimit)
		}
		return string(a.Content), nil
	}
	if a.URL == "" {
		return "", fmt.Errorf("%w: %s has no content", ErrAttachment, a.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAttachment, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAttachment, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrAttachment, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.attachmentLimit+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAttachment, err)
	}
	if int64(len(body)) > h.attachmentLimit {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrAttachment, a.Name, h.attachmentLimit)
	}
	return string(body), nil
}

// Get returns a live message by id.
func (h *Hub) Get(channel, id string) (*Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, err := h.lookup(channel, id)
	if err != nil {
		return nil, false
	}
	return m.snapshot(), true
}

// History returns up to limit of the newest live messages in channel, oldest first.
func (h *Hub) History(channel string, limit int) []*Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*Message
	msgs := h.channels[channel]
	for i := len(msgs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, msgs[i].snapshot())
	}
	slices.Reverse(out)
	return out
}

// Waiting reports how many gates are currently blocked on the hub.
func (h *Hub) Waiting() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}

var _ Transport = (*Hub)(nil)

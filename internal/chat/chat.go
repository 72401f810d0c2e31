// Package chat defines the messaging surface sessions run on and an
// in-process implementation of it.
package chat

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrForbidden       = errors.New("missing permission")
	ErrAttachment      = errors.New("could not retrieve attachment")
)

// User is a chat identity. Tag is the display handle ("name#0001").
type User struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
}

// Attachment is a file linked to a message. Content is set when the file
// travelled inline with the message; otherwise URL is fetched.
type Attachment struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Content []byte `json:"content,omitempty"`
}

// Field is one titled block of a card
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Card is a rich message body.
type Card struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      string  `json:"footer,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
}

// Field returns the first field called name.
func (c *Card) Field(name string) (Field, bool) {
	if c == nil {
		return Field{}, false
	}
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (c *Card) clone() *Card {
	if c == nil {
		return nil
	}
	out := *c
	out.Fields = append([]Field(nil), c.Fields...)
	return &out
}

// ReactionSummary lists who reacted with one emoji, in reaction order.
type ReactionSummary struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// Message is a posted chat message. Seq orders messages within a channel.
type Message struct {
	ID          string            `json:"id"`
	Seq         uint64            `json:"seq"`
	Channel     string            `json:"channel"`
	Author      User              `json:"author"`
	Content     string            `json:"content,omitempty"`
	Card        *Card             `json:"card,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Reactions   []ReactionSummary `json:"reactions,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	EditedAt    *time.Time        `json:"edited_at,omitempty"`
}

// Outgoing is what the bot sends or edits a message to.
type Outgoing struct {
	Content string
	Card    *Card
	ReplyTo string
}

// Reaction is a single user reacting to a message.
type Reaction struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
	User    User   `json:"user"`
	Emoji   string `json:"emoji"`
}

// ReactionQuery selects the reactions a gate waits for.
type ReactionQuery struct {
	Channel string
	Message string
	UserID  string
	Emojis  []string
}

// MessageQuery selects the messages a gate waits for. Only messages ordered
// after the After sequence number qualify.
type MessageQuery struct {
	Channel  string
	AuthorID string
	After    uint64
}

// Transport is everything a session needs from the chat platform.
type Transport interface {
	Send(ctx context.Context, channel string, out Outgoing) (*Message, error)
	Edit(ctx context.Context, channel, id string, out Outgoing) (*Message, error)
	Delete(ctx context.Context, channel, id string) error

	AddReaction(ctx context.Context, channel, id, emoji string) error
	// RemoveReaction removes the bot's own reaction.
	RemoveReaction(ctx context.Context, channel, id, emoji string) error
	ClearReactions(ctx context.Context, channel, id string) error

	// NextReaction blocks until the queried user reacts with one of the
	// emojis, counting reactions already present. It fails with
	// ErrMessageNotFound once the message is deleted and with ctx.Err() when
	// ctx ends first.
	NextReaction(ctx context.Context, q ReactionQuery) (Reaction, error)

	// NextMessage blocks until the author posts in the channel after q.After.
	NextMessage(ctx context.Context, q MessageQuery) (*Message, error)

	FetchAttachment(ctx context.Context, a Attachment) (string, error)
}

// Package present builds the cards a session shows in chat.
package present

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/terra-clan/challenge-bot/internal/chat"
	"github.com/terra-clan/challenge-bot/internal/models"
)

// Reaction choices
const (
	EmojiHint   = "💡"
	EmojiCancel = "🚫"
	EmojiRetry  = "🔁"
	EmojiNext   = "▶"
)

// Card colors
const (
	ColorSuccess = 0x00FF00
	ColorFailure = 0xFF0000
	ColorPending = 0x444444
	ColorHint    = 0xFFD700
)

// FieldLimit is the most characters a card field value may hold.
const FieldLimit = 1024

// Presenter renders cards. The zero value is usable.
type Presenter struct {
	Prefix    string // command prefix shown in usage text
	Thumbnail string
}

// New creates a presenter
func New(prefix, thumbnail string) *Presenter {
	return &Presenter{Prefix: prefix, Thumbnail: thumbnail}
}

func requestedBy(tag string) string {
	return "Requested by: " + tag
}

// Searching is the placeholder shown while a challenge is drawn.
func (p *Presenter) Searching(requester string) *chat.Card {
	return &chat.Card{
		Title:       "Finding Coding Challenge",
		Description: "*Searching Catalogs*",
		Color:       ColorPending,
		Thumbnail:   p.Thumbnail,
		Footer:      requestedBy(requester),
	}
}

// Challenge renders the presentation card. description is already cleaned.
func (p *Presenter) Challenge(ch *models.Challenge, lang models.Language, description, requester string, expiry time.Duration) *chat.Card {
	card := &chat.Card{
		Title:     ch.Name,
		Color:     ColorSuccess,
		Thumbnail: p.Thumbnail,
		Footer:    requestedBy(requester),
	}
	card.Fields = append(card.Fields,
		chat.Field{Name: "Language", Value: lang.String(), Inline: true},
		chat.Field{Name: "Level", Value: fmt.Sprintf("%d (%s)", ch.Level, ch.LevelName), Inline: true},
	)
	if len(ch.Tags) > 0 {
		card.Fields = append(card.Fields, chat.Field{Name: "Tags", Value: strings.Join(ch.Tags, ", "), Inline: true})
	}
	card.Fields = append(card.Fields,
		chat.Field{Name: "Instructions", Value: Truncate(description, FieldLimit)},
		chat.Field{Name: "How to Answer?", Value: "Next set of Input will take your answer! Remember to put code blocks around your code!"},
		chat.Field{Name: "Expiration", Value: formatExpiry(expiry)},
	)
	return card
}

func formatExpiry(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 Minute"
		}
		return fmt.Sprintf("%d Minutes", n)
	}
	return d.String()
}

// Hint renders the n-th revealed hint (1-based) of total.
func (p *Presenter) Hint(n, total int, text string) *chat.Card {
	return &chat.Card{
		Title:       fmt.Sprintf("Hint %d/%d", n, total),
		Description: Truncate(text, 4096),
		Color:       ColorHint,
	}
}

// Help is the usage card for a bare command.
func (p *Presenter) Help(requester string) *chat.Card {
	cmd := p.Prefix + "challenge"
	return &chat.Card{
		Title:       "Command Usage",
		Description: "*Find a Code Challenge for my level!*",
		Color:       ColorSuccess,
		Fields: []chat.Field{
			{Name: "Challenge", Value: cmd + " <language>"},
			{Name: "Challenge w/ Level Specific", Value: cmd + " <language> <level>"},
		},
		Thumbnail: p.Thumbnail,
		Footer:    requestedBy(requester),
	}
}

// Failure is a red reply card
func (p *Presenter) Failure(text string) *chat.Card {
	return &chat.Card{Description: Truncate(text, 4096), Color: ColorFailure}
}

// Warning is an inline, non-fatal notice.
func (p *Presenter) Warning(text string) *chat.Card {
	return &chat.Card{Description: Truncate(text, 4096), Color: ColorHint}
}

var (
	codeTagRe   = regexp.MustCompile(`(?i)</?code>`)
	markupTagRe = regexp.MustCompile(`<[^>]+>`)
	strict      = bluemonday.StrictPolicy()
)

// CleanDescription turns authored description lines into display text.
// <code> tags become fences and any other markup is removed.
func CleanDescription(lines []string) string {
	text := strings.Join(lines, "\n")
	text = codeTagRe.ReplaceAllString(text, "```")
	text = markupTagRe.ReplaceAllString(text, "")
	// StrictPolicy escapes what it keeps; undo that for plain-text display.
	text = html.UnescapeString(strict.Sanitize(text))
	return strings.TrimSpace(text)
}

// Truncate shortens s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	i, n := 0, 0
	for i < len(s) && n < limit {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n++
	}
	return s[:i]
}

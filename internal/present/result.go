package present

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/terra-clan/challenge-bot/internal/chat"
	"github.com/terra-clan/challenge-bot/internal/models"
)

const zeroWidthSpace = "\u200B"

// Result formats a compile outcome. suppressHints drops the follow-up
// instructions, used once the reaction menu has expired.
func (p *Presenter) Result(res *models.CompileResult, lang models.Language, requester string, suppressHints bool) *chat.Card {
	card := &chat.Card{
		Title:  "Compilation Results:",
		Color:  ColorSuccess,
		Footer: requestedBy(requester) + " || Powered by wandbox.org",
	}

	if res.Succeeded() {
		if !suppressHints {
			card.Fields = append(card.Fields, chat.Field{
				Name: "Congratulations!",
				Value: fmt.Sprintf("You have completed this challenge, try another challenge by doing `%schallenge %s`\nIf you like to try another challenge hit %s",
					p.Prefix, lang, EmojiNext),
			})
		}
	} else {
		card.Color = ColorFailure

		if res.CompilerMessage != "" {
			card.Fields = append(card.Fields, chat.Field{
				Name:  "Compiler Output",
				Value: fenced(ansi.Strip(res.CompilerMessage), "```", "\n```\n"),
			})
		}
		if res.ProgramMessage != "" {
			out := strings.ReplaceAll(ansi.Strip(res.ProgramMessage), "`", zeroWidthSpace+"`")
			card.Fields = append(card.Fields, chat.Field{
				Name:  "Program Output",
				Value: fenced(out, "```\n", "\n```"),
			})
		}
		if !suppressHints {
			card.Fields = append(card.Fields, chat.Field{
				Name: "Incorrect!",
				Value: fmt.Sprintf("If you like to retry press the %s, or you can hit the %s or wait for this to timeout to move along.\nUnless you like to try a different challenge hit %s",
					EmojiRetry, EmojiCancel, EmojiNext),
			})
		}
	}

	card.Fields = append(card.Fields, chat.Field{
		Name:  "Status code",
		Value: fmt.Sprintf("Finished with exit code: %d", res.Status),
	})
	if res.Signal != "" {
		card.Fields = append(card.Fields, chat.Field{Name: "Signal", Value: fenced(res.Signal, "```", "```")})
	}
	if res.URL != "" {
		card.Fields = append(card.Fields, chat.Field{Name: "URL", Value: "Link: " + res.URL})
	}
	return card
}

// fenced wraps body so that the whole value fits in one field.
func fenced(body, open, close string) string {
	budget := FieldLimit - len([]rune(open)) - len([]rune(close))
	return open + Truncate(body, budget) + close
}

// ResultReactions is the follow-up menu for a result. Retry is only offered
// for a failed run of a loaded challenge.
func ResultReactions(res *models.CompileResult, hasChallenge bool) []string {
	if res.Succeeded() || !hasChallenge {
		return []string{EmojiCancel, EmojiNext}
	}
	return []string{EmojiCancel, EmojiRetry, EmojiNext}
}

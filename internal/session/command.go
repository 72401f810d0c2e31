package session

import (
	"strconv"
	"strings"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// CommandName is the chat command that starts a session.
const CommandName = "challenge"

// ParseArgs validates "challenge <language> [level]" arguments. No arguments
// returns ErrHelp.
func ParseArgs(prefix string, args []string) (models.Language, *int, error) {
	if len(args) == 0 {
		return "", nil, ErrHelp
	}

	lang, ok := models.ParseLanguage(args[0])
	if !ok {
		return "", nil, invalidLanguage(prefix)
	}

	if len(args) < 2 {
		return lang, nil, nil
	}

	level, err := strconv.Atoi(args[1])
	if err != nil || level < 0 {
		return "", nil, newError(KindUserInput, err,
			"Level must be a non-negative number \n\n Usage: %s%s <language> <level>", prefix, CommandName)
	}
	return lang, &level, nil
}

func invalidLanguage(prefix string) *Error {
	return newError(KindUserInput, nil, "You must input a valid language \n\n Usage: %s%s <language>", prefix, CommandName)
}

// SplitCommand splits "<prefix>name args..." into name and args. ok is false
// when content does not start with prefix.
func SplitCommand(prefix, content string) (name string, args []string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

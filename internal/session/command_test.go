package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/challenge-bot/internal/models"
)

func TestParseArgs(t *testing.T) {
	cases := []struct {
		name      string
		args      []string
		wantLang  models.Language
		wantLevel *int
		wantKind  Kind
		help      bool
	}{
		{name: "no arguments", help: true},
		{name: "language only", args: []string{"python"}, wantLang: models.LangPython},
		{name: "alias and case", args: []string{"CPP"}, wantLang: models.LangCpp},
		{name: "with level", args: []string{"js", "2"}, wantLang: models.LangJavaScript, wantLevel: intPtr(2)},
		{name: "level zero", args: []string{"go", "0"}, wantLang: models.LangGo, wantLevel: intPtr(0)},
		{name: "unknown language", args: []string{"cobol"}, wantKind: KindUserInput},
		{name: "negative level", args: []string{"python", "-1"}, wantKind: KindUserInput},
		{name: "word level", args: []string{"python", "hard"}, wantKind: KindUserInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lang, level, err := ParseArgs(";", tc.args)
			switch {
			case tc.help:
				require.ErrorIs(t, err, ErrHelp)
			case tc.wantKind != "":
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, KindOf(err))
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.wantLang, lang)
				assert.Equal(t, tc.wantLevel, level)
			}
		})
	}
}

func TestParseArgsUsageText(t *testing.T) {
	_, _, err := ParseArgs("!", []string{"klingon"})
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Msg, "Usage: !challenge <language>")

	_, _, err = ParseArgs("!", []string{"python", "x"})
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Msg, "Usage: !challenge <language> <level>")
}

func TestSplitCommand(t *testing.T) {
	name, args, ok := SplitCommand(";", ";Challenge  python 3")
	require.True(t, ok)
	assert.Equal(t, "challenge", name)
	assert.Equal(t, []string{"python", "3"}, args)

	_, _, ok = SplitCommand(";", "challenge python")
	assert.False(t, ok)

	_, _, ok = SplitCommand(";", ";   ")
	assert.False(t, ok)

	_, _, ok = SplitCommand("", "challenge")
	assert.False(t, ok)
}

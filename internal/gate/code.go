package gate

import (
	"regexp"
	"strings"
)

const fence = "```"

var (
	codeBlockRe   = regexp.MustCompile("(?s)```(.*?)```")
	languageTagRe = regexp.MustCompile(`^[\w#+.-]+$`)
)

// ExtractCodeBlock returns the body of the first fenced block in text.
func ExtractCodeBlock(text string) (string, bool) {
	m := codeBlockRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	code := stripLanguageTag(m[1])
	if strings.TrimSpace(code) == "" {
		return "", false
	}
	return code, true
}

// stripLanguageTag drops a "py" style tag from the opening fence line.
func stripLanguageTag(block string) string {
	first, rest, found := strings.Cut(block, "\n")
	if !found {
		return block
	}
	if first == "" || languageTagRe.MatchString(strings.TrimSpace(first)) {
		return rest
	}
	return block
}

// CleanSubmission removes a leading fence-open line and a trailing fence-close
// token left over from pasted or attached code.
func CleanSubmission(code string) string {
	if strings.HasPrefix(code, fence) {
		if _, rest, found := strings.Cut(code, "\n"); found {
			code = rest
		} else {
			code = strings.TrimPrefix(code, fence)
		}
	}
	trimmed := strings.TrimRight(code, " \t\r\n")
	if strings.HasSuffix(trimmed, fence) {
		code = strings.TrimSuffix(trimmed, fence)
	}
	return code
}

package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Template placeholders. Each must appear exactly once.
const (
	TestsPlaceholder    = "{TESTS}"
	UserCodePlaceholder = "{USERCODE}"
)

var ErrMalformedTemplate = errors.New("malformed template")

// template is a per-language skeleton split around its two placeholders so that
// substitution never rescans text that was already inserted.
type template struct {
	raw      string
	segments []string // text between placeholders, len(slots)+1
	slots    []string // placeholder order as found in raw
}

func parseTemplate(raw string) (*template, error) {
	for _, ph := range []string{TestsPlaceholder, UserCodePlaceholder} {
		if n := strings.Count(raw, ph); n != 1 {
			return nil, fmt.Errorf("%w: %s appears %d times", ErrMalformedTemplate, ph, n)
		}
	}

	testsAt := strings.Index(raw, TestsPlaceholder)
	userAt := strings.Index(raw, UserCodePlaceholder)

	first, second := TestsPlaceholder, UserCodePlaceholder
	firstAt, secondAt := testsAt, userAt
	if userAt < testsAt {
		first, second = second, first
		firstAt, secondAt = secondAt, firstAt
	}

	return &template{
		raw: raw,
		segments: []string{
			raw[:firstAt],
			raw[firstAt+len(first) : secondAt],
			raw[secondAt+len(second):],
		},
		slots: []string{first, second},
	}, nil
}

func (t *template) render(values map[string]string) string {
	var b strings.Builder
	b.Grow(len(t.raw) + len(values[TestsPlaceholder]) + len(values[UserCodePlaceholder]))
	for i, slot := range t.slots {
		b.WriteString(t.segments[i])
		b.WriteString(values[slot])
	}
	b.WriteString(t.segments[len(t.segments)-1])
	return b.String()
}

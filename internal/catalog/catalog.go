package catalog

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// Catalog holds challenges grouped by difficulty level and the per-language
// synthesis templates. It is populated once at startup and read concurrently
// by every session afterwards.
type Catalog struct {
	mu        sync.RWMutex
	byLevel   [][]*models.Challenge // index = level ordinal, insertion order kept
	templates map[models.Language]*template

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Catalog
type Option func(*Catalog)

// WithRand sets the random source used by SelectRandom
func WithRand(r *rand.Rand) Option {
	return func(c *Catalog) {
		c.rng = r
	}
}

// New creates an empty catalog
func New(opts ...Option) *Catalog {
	now := uint64(time.Now().UnixNano())
	c := &Catalog{
		templates: make(map[models.Language]*template),
		rng:       rand.New(rand.NewPCG(now, now>>1|1)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add appends a challenge to its level, growing the level range so that
// ordinals stay contiguous from 0.
func (c *Catalog) Add(ch *models.Challenge) error {
	if ch == nil || ch.Name == "" {
		return fmt.Errorf("challenge name is required")
	}
	if len(ch.Languages) == 0 {
		return fmt.Errorf("challenge %q supports no languages", ch.Name)
	}
	for lang := range ch.Tests {
		if !ch.Supports(lang) {
			return fmt.Errorf("challenge %q has tests for unsupported language %s", ch.Name, lang)
		}
	}
	if ch.Level < 0 {
		return fmt.Errorf("challenge %q has negative level %d", ch.Name, ch.Level)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.byLevel) <= ch.Level {
		c.byLevel = append(c.byLevel, nil)
	}
	c.byLevel[ch.Level] = append(c.byLevel[ch.Level], ch)
	return nil
}

// SetTemplate registers the synthesis template for lang.
func (c *Catalog) SetTemplate(lang models.Language, raw string) error {
	tmpl, err := parseTemplate(raw)
	if err != nil {
		return fmt.Errorf("template for %s: %w", lang, err)
	}
	c.mu.Lock()
	c.templates[lang] = tmpl
	c.mu.Unlock()
	return nil
}

// HasTemplate reports whether lang can be synthesized
func (c *Catalog) HasTemplate(lang models.Language) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.templates[lang]
	return ok
}

// SelectRandom draws a challenge supporting lang.
//
// With an explicit level only that level is considered. Without one a level
// ordinal is drawn uniformly; if it holds nothing for lang the lowest level
// that does is used instead. Returns false when nothing qualifies.
func (c *Catalog) SelectRandom(level *int, lang models.Language) (*models.Challenge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.byLevel) == 0 {
		return nil, false
	}

	if level != nil {
		if *level < 0 || *level >= len(c.byLevel) {
			return nil, false
		}
		return c.pick(c.matching(*level, lang))
	}

	drawn := c.intN(len(c.byLevel))
	if candidates := c.matching(drawn, lang); len(candidates) > 0 {
		return c.pick(candidates)
	}
	for l := range c.byLevel {
		if candidates := c.matching(l, lang); len(candidates) > 0 {
			return c.pick(candidates)
		}
	}
	return nil, false
}

func (c *Catalog) matching(level int, lang models.Language) []*models.Challenge {
	var out []*models.Challenge
	for _, ch := range c.byLevel[level] {
		if ch.Supports(lang) {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Catalog) pick(candidates []*models.Challenge) (*models.Challenge, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[c.intN(len(candidates))], true
}

func (c *Catalog) intN(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.IntN(n)
}

// Synthesize merges a cleaned submission with the hidden test expressions.
// Returns false when no template is registered for lang.
func (c *Catalog) Synthesize(userCode string, tests []string, lang models.Language) (string, bool) {
	c.mu.RLock()
	tmpl, ok := c.templates[lang]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}

	joined := strings.Join(tests, " "+lang.AndOperator()+" ")
	return tmpl.render(map[string]string{
		TestsPlaceholder:    joined,
		UserCodePlaceholder: userCode,
	}), true
}

// Levels returns one summary per level ordinal
func (c *Catalog) Levels() []models.LevelSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.LevelSummary, 0, len(c.byLevel))
	for level, challenges := range c.byLevel {
		out = append(out, models.LevelSummary{
			Level:      level,
			Name:       models.DifficultyName(level),
			Challenges: len(challenges),
		})
	}
	return out
}

// Challenges returns the challenges at level in insertion order
func (c *Catalog) Challenges(level int) []*models.Challenge {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if level < 0 || level >= len(c.byLevel) {
		return nil
	}
	return append([]*models.Challenge(nil), c.byLevel[level]...)
}

// Count returns the total number of challenges
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, challenges := range c.byLevel {
		n += len(challenges)
	}
	return n
}

// Languages lists every language that has a template or a challenge
func (c *Catalog) Languages() []models.LanguageInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[models.Language]int)
	for _, challenges := range c.byLevel {
		for _, ch := range challenges {
			for _, lang := range ch.Languages {
				counts[lang]++
			}
		}
	}
	for lang := range c.templates {
		if _, ok := counts[lang]; !ok {
			counts[lang] = 0
		}
	}

	out := make([]models.LanguageInfo, 0, len(counts))
	for lang, n := range counts {
		_, hasTemplate := c.templates[lang]
		out = append(out, models.LanguageInfo{Language: lang, Template: hasTemplate, Challenges: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// MissingTemplates lists languages offered by some challenge but lacking a template
func (c *Catalog) MissingTemplates() []models.Language {
	var out []models.Language
	for _, info := range c.Languages() {
		if !info.Template && info.Challenges > 0 {
			out = append(out, info.Language)
		}
	}
	return out
}

package models

import "strings"

// Difficulty labels in ordinal order; the index is the level.
var difficultyLevels = []string{"beginner", "easy", "medium", "hard", "very-hard", "expert"}

// DifficultyLevel maps a free-text label ("Very Hard") to its ordinal.
// Unknown or empty labels map to 0.
func DifficultyLevel(label string) int {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "-")
	for i, name := range difficultyLevels {
		if name == key {
			return i
		}
	}
	return 0
}

// DifficultyName returns the canonical label for a level ordinal.
func DifficultyName(level int) string {
	if level < 0 || level >= len(difficultyLevels) {
		return "unknown"
	}
	return difficultyLevels[level]
}

// Challenge is a single exercise. It is immutable once loaded.
type Challenge struct {
	Name          string                `json:"name"`
	Tags          []string              `json:"tags"`
	Languages     []Language            `json:"languages"`
	Level         int                   `json:"level"`
	LevelName     string                `json:"levelName"`
	Description   map[Language][]string `json:"-"`
	Tests         map[Language][]string `json:"-"`
	Hints         map[Language][]string `json:"-"`
	CaseSensitive bool                  `json:"caseSensitive"`
	SourcePath    string                `json:"-"`
}

// Supports reports whether the challenge can be solved in lang.
func (c *Challenge) Supports(lang Language) bool {
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// DescriptionFor returns the description lines for lang, falling back to "*".
func (c *Challenge) DescriptionFor(lang Language) ([]string, bool) {
	return lookupWithWildcard(c.Description, lang)
}

// HintsFor returns the hints for lang in authored order, falling back to "*".
func (c *Challenge) HintsFor(lang Language) []string {
	hints, _ := lookupWithWildcard(c.Hints, lang)
	return hints
}

// TestsFor returns the hidden test expressions for lang.
func (c *Challenge) TestsFor(lang Language) []string {
	return c.Tests[lang]
}

func lookupWithWildcard(m map[Language][]string, lang Language) ([]string, bool) {
	if v, ok := m[lang]; ok {
		return v, true
	}
	v, ok := m[WildcardLanguage]
	return v, ok
}

// LevelSummary is the API view of one difficulty bucket.
type LevelSummary struct {
	Level      int    `json:"level"`
	Name       string `json:"name"`
	Challenges int    `json:"challenges"`
}

// ChallengeSummary is the API view of a challenge; tests and hints stay hidden.
type ChallengeSummary struct {
	Name      string     `json:"name"`
	Tags      []string   `json:"tags"`
	Languages []Language `json:"languages"`
	Level     int        `json:"level"`
	LevelName string     `json:"levelName"`
	Hints     int        `json:"hints"`
}

// Summary builds the API view of c.
func (c *Challenge) Summary() ChallengeSummary {
	hints := 0
	for _, h := range c.Hints {
		hints = max(hints, len(h))
	}
	return ChallengeSummary{
		Name:      c.Name,
		Tags:      c.Tags,
		Languages: c.Languages,
		Level:     c.Level,
		LevelName: c.LevelName,
		Hints:     hints,
	}
}

// LanguageInfo reports whether a language can be synthesized.
type LanguageInfo struct {
	Language   Language `json:"language"`
	Template   bool     `json:"template"`
	Challenges int      `json:"challenges"`
}

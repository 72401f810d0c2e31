package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// Descriptor file names, in lookup order.
var descriptorNames = []string{"challenge.json", "challenge.yaml", "challenge.yml"}

// Load builds a catalog from a challenges tree and a templates directory.
func Load(challengesDir, templatesDir string, opts ...Option) (*Catalog, error) {
	c := New(opts...)

	if _, err := c.LoadTemplates(templatesDir); err != nil {
		return nil, err
	}
	if _, err := c.LoadChallenges(challengesDir); err != nil {
		return nil, err
	}

	if missing := c.MissingTemplates(); len(missing) > 0 {
		slog.Warn("languages offered without a synthesis template", "languages", missing)
	}
	return c, nil
}

// LoadChallenges walks dir, descending into directories that do not hold a
// descriptor and loading exactly one descriptor per leaf directory.
func (c *Catalog) LoadChallenges(dir string) (int, error) {
	slog.Info("loading challenges from directory", "dir", dir)

	seen := make(map[string]string)
	loaded := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		descriptor := findDescriptor(path)
		if descriptor == "" {
			return nil
		}

		ch, err := LoadChallengeFile(descriptor)
		if err != nil {
			slog.Warn("failed to load challenge", "file", descriptor, "error", err)
			return filepath.SkipDir
		}
		if prev, dup := seen[ch.Name]; dup {
			slog.Warn("duplicate challenge name, skipping", "name", ch.Name, "file", descriptor, "first", prev)
			return filepath.SkipDir
		}
		if err := c.Add(ch); err != nil {
			slog.Warn("rejected challenge", "file", descriptor, "error", err)
			return filepath.SkipDir
		}

		seen[ch.Name] = descriptor
		loaded++
		return filepath.SkipDir
	})
	if err != nil {
		return loaded, fmt.Errorf("failed to walk challenges dir: %w", err)
	}

	slog.Info("challenges loaded", "count", loaded, "levels", len(c.Levels()))
	return loaded, nil
}

func findDescriptor(dir string) string {
	for _, name := range descriptorNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadChallengeFile parses a single JSON or YAML descriptor
func LoadChallengeFile(path string) (*models.Challenge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var df descriptorFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &df); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &df); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}

	ch, err := df.challenge()
	if err != nil {
		return nil, err
	}
	ch.SourcePath = path
	return ch, nil
}

// LoadTemplates registers every template file in dir whose extension maps to
// a known language. A malformed template fails the load.
func (c *Catalog) LoadTemplates(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read templates dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		lang, ok := models.LanguageForExtension(filepath.Ext(entry.Name()))
		if !ok {
			slog.Debug("skipping template with unknown extension", "file", entry.Name())
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}
		if err := c.SetTemplate(lang, string(data)); err != nil {
			return loaded, err
		}

		slog.Info("template loaded", "language", lang, "file", entry.Name())
		loaded++
	}
	return loaded, nil
}

// --- descriptor file structs ---

// descriptorFile is the on-disk challenge format. Instructions and hints may be
// a string, a list of lines, or a per-language mapping of either.
type descriptorFile struct {
	Title         string   `json:"title" yaml:"title"`
	Tags          []string `json:"tags" yaml:"tags"`
	Difficulty    string   `json:"difficulty" yaml:"difficulty"`
	Instructions  any      `json:"instructions" yaml:"instructions"`
	Tests         any      `json:"tests" yaml:"tests"`
	Hints         any      `json:"hints" yaml:"hints"`
	CaseSensitive *bool    `json:"caseSensitive" yaml:"case_sensitive"`
}

var errNoTests = errors.New("challenge has no tests")

func (df *descriptorFile) challenge() (*models.Challenge, error) {
	if strings.TrimSpace(df.Title) == "" {
		return nil, fmt.Errorf("challenge title is required")
	}

	tests, err := perLanguage(df.Tests)
	if err != nil {
		return nil, fmt.Errorf("tests: %w", err)
	}
	delete(tests, models.WildcardLanguage)
	if len(tests) == 0 {
		return nil, errNoTests
	}

	description, err := perLanguage(df.Instructions)
	if err != nil {
		return nil, fmt.Errorf("instructions: %w", err)
	}
	hints, err := perLanguage(df.Hints)
	if err != nil {
		return nil, fmt.Errorf("hints: %w", err)
	}

	languages := make([]models.Language, 0, len(tests))
	for _, lang := range models.KnownLanguages() {
		if _, ok := tests[lang]; ok {
			languages = append(languages, lang)
		}
	}

	level := models.DifficultyLevel(df.Difficulty)
	levelName := strings.TrimSpace(df.Difficulty)
	if levelName == "" {
		levelName = models.DifficultyName(level)
	}

	caseSensitive := true
	if df.CaseSensitive != nil {
		caseSensitive = *df.CaseSensitive
	}

	return &models.Challenge{
		Name:          strings.TrimSpace(df.Title),
		Tags:          df.Tags,
		Languages:     languages,
		Level:         level,
		LevelName:     levelName,
		Description:   description,
		Tests:         tests,
		Hints:         hints,
		CaseSensitive: caseSensitive,
	}, nil
}

// perLanguage normalizes a loosely typed descriptor field. A bare string or
// list applies to every language and is stored under "*".
func perLanguage(v any) (map[models.Language][]string, error) {
	out := make(map[models.Language][]string)
	switch val := v.(type) {
	case nil:
		return out, nil
	case map[string]any:
		keys := make(map[models.Language]string)
		for _, key := range slices.Sorted(maps.Keys(val)) {
			raw := val[key]
			lang := models.WildcardLanguage
			if key != string(models.WildcardLanguage) {
				parsed, ok := models.ParseLanguage(key)
				if !ok {
					slog.Debug("ignoring unknown language key", "key", key)
					continue
				}
				lang = parsed
			}
			if prev, dup := keys[lang]; dup {
				return nil, fmt.Errorf("%q and %q both name %s", prev, key, lang)
			}
			keys[lang] = key
			lines, err := toLines(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[lang] = lines
		}
		return out, nil
	default:
		lines, err := toLines(val)
		if err != nil {
			return nil, err
		}
		out[models.WildcardLanguage] = lines
		return out, nil
	}
}

func toLines(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{val}, nil
	case []any:
		lines := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, want string", i, item)
			}
			lines = append(lines, s)
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}

package models

import (
	"sort"
	"strings"
)

// Language identifies a programming language a challenge can be solved in.
// The set is closed: anything outside KnownLanguages is rejected at parse time.
type Language string

const (
	LangC          Language = "c"
	LangCpp        Language = "c++"
	LangCSharp     Language = "c#"
	LangGo         Language = "go"
	LangJava       Language = "java"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangRuby       Language = "ruby"
	LangRust       Language = "rust"
	LangTypeScript Language = "typescript"
)

// WildcardLanguage is the descriptor key used for text shared by all languages.
const WildcardLanguage Language = "*"

// LanguageSpec describes how a language is recognized and synthesized.
type LanguageSpec struct {
	ID         Language
	Aliases    []string
	Extensions []string // template file extensions, without the dot
	AndOp      string   // operator joining hidden test expressions
}

var languageSpecs = []LanguageSpec{
	{ID: LangC, Extensions: []string{"c"}, AndOp: "&&"},
	{ID: LangCpp, Aliases: []string{"cpp", "cxx"}, Extensions: []string{"cpp", "cc", "cxx"}, AndOp: "&&"},
	{ID: LangCSharp, Aliases: []string{"cs", "csharp"}, Extensions: []string{"cs"}, AndOp: "&&"},
	{ID: LangGo, Aliases: []string{"golang"}, Extensions: []string{"go"}, AndOp: "&&"},
	{ID: LangJava, Extensions: []string{"java"}, AndOp: "&&"},
	{ID: LangJavaScript, Aliases: []string{"js", "node"}, Extensions: []string{"js"}, AndOp: "&&"},
	{ID: LangPython, Aliases: []string{"py", "python3"}, Extensions: []string{"py"}, AndOp: "and"},
	{ID: LangRuby, Aliases: []string{"rb"}, Extensions: []string{"rb"}, AndOp: "&&"},
	{ID: LangRust, Aliases: []string{"rs"}, Extensions: []string{"rs"}, AndOp: "&&"},
	{ID: LangTypeScript, Aliases: []string{"ts"}, Extensions: []string{"ts"}, AndOp: "&&"},
}

var (
	languageByName      = map[string]LanguageSpec{}
	languageByExtension = map[string]LanguageSpec{}
)

func init() {
	for _, spec := range languageSpecs {
		languageByName[string(spec.ID)] = spec
		for _, alias := range spec.Aliases {
			languageByName[alias] = spec
		}
		for _, ext := range spec.Extensions {
			languageByExtension[ext] = spec
		}
	}
}

// ParseLanguage normalizes case and aliases ("cpp" -> "c++").
func ParseLanguage(s string) (Language, bool) {
	spec, ok := languageByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", false
	}
	return spec.ID, true
}

// LanguageForExtension maps a template file extension to its language.
func LanguageForExtension(ext string) (Language, bool) {
	spec, ok := languageByExtension[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return "", false
	}
	return spec.ID, true
}

// KnownLanguages returns every supported language id, sorted.
func KnownLanguages() []Language {
	out := make([]Language, 0, len(languageSpecs))
	for _, spec := range languageSpecs {
		out = append(out, spec.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Spec returns the language description; the zero value for unknown ids.
func (l Language) Spec() LanguageSpec {
	return languageByName[string(l)]
}

// AndOperator returns the logical AND used to join test expressions.
func (l Language) AndOperator() string {
	if op := l.Spec().AndOp; op != "" {
		return op
	}
	return "&&"
}

func (l Language) String() string {
	return string(l)
}

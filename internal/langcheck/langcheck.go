// Package langcheck verifies that a translated document is written in the
// requested language. Only string values take part in detection; keys,
// numbers and markup are ignored.
package langcheck

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"

	"github.com/valpere/cvtran/internal/jsonlex"
)

// MinTextLength is the rune count below which detection is skipped.
const MinTextLength = 20

var ErrLanguageMismatch = errors.New("language mismatch")

// Checker wraps a lingua detector. Building one is expensive; reuse it.
type Checker struct {
	detector lingua.LanguageDetector
}

// New builds a Checker for the given ISO 639-1 codes, or for every
// language lingua knows when none are given.
func New(codes ...string) *Checker {
	wanted := make(map[string]bool, len(codes))
	for _, code := range codes {
		wanted[baseLanguage(code)] = true
	}
	var langs []lingua.Language
	for _, l := range lingua.AllLanguages() {
		if wanted[strings.ToLower(l.IsoCode639_1().String())] {
			langs = append(langs, l)
		}
	}

	builder := lingua.NewLanguageDetectorBuilder().FromAllLanguages()
	if len(langs) >= 2 {
		builder = lingua.NewLanguageDetectorBuilder().FromLanguages(langs...)
	}
	return &Checker{detector: builder.Build()}
}

// Detect returns the ISO 639-1 code of text, or false when lingua cannot
// decide.
func (c *Checker) Detect(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	lang, ok := c.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Check extracts the prose of doc and compares its detected language to
// targetLang. Short or ambiguous prose passes.
func (c *Checker) Check(doc []byte, targetLang string) error {
	want := baseLanguage(targetLang)
	if want == "" {
		return nil
	}

	text := strings.TrimSpace(Prose(doc))
	if len([]rune(text)) < MinTextLength {
		return nil
	}

	got, ok := c.Detect(text)
	if !ok {
		return nil
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: expected %s but detected %s", ErrLanguageMismatch, want, got)
	}
	return nil
}

// Prose returns the string values of doc as plain text, one paragraph per
// value, with Markdown formatting removed.
func Prose(doc []byte) string {
	text := string(doc)

	var sb strings.Builder
	for _, sp := range jsonlex.Strings(text) {
		if sp.Key {
			continue
		}
		var value string
		if err := json.Unmarshal([]byte(text[sp.Start:sp.End]), &value); err != nil {
			continue
		}
		if value = strings.TrimSpace(value); value == "" || isIdentifier(value) {
			continue
		}
		sb.WriteString(value)
		sb.WriteString("\n\n")
	}
	return PlainText(sb.String())
}

// isIdentifier reports values that carry no prose: URLs, emails, dates.
func isIdentifier(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	return strings.Contains(s, "://") || strings.Contains(s, "@") || strings.IndexFunc(s, isLetter) < 0
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 0x7f
}

func baseLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}

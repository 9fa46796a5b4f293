package translator

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const fragmentInstructions = `You translate fragments of a JSON document into %s.
Rules:
- Keep the JSON structure exactly as given. Do not add, remove, rename or reorder keys.
- Translate only human-readable string values. Leave keys, numbers, booleans, nulls, URLs, e-mail addresses and dates unchanged.
- Keep every array the same length.
- Respond with the JSON only. No explanations, no markdown, no code fences.`

// Instructions returns the fixed fragment-translation instructions for
// targetLang.
func Instructions(targetLang string) string {
	return fmt.Sprintf(fragmentInstructions, LanguageName(targetLang))
}

// LanguageName renders a language code as an English name, e.g. "es" as
// "Spanish (es)". Unknown codes are returned unchanged.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return code
	}
	return fmt.Sprintf("%s (%s)", name, tag)
}

// TranslateFragment sends one fragment to svc and returns the raw model text.
// Backend errors are returned unchanged for classification upstream.
func TranslateFragment(ctx context.Context, svc TranslationService, fragment, targetLang string) (string, error) {
	result, err := svc.Translate(ctx, TranslateRequest{
		Text:         fragment,
		TargetLang:   targetLang,
		Instructions: Instructions(targetLang),
	})
	if err != nil {
		return "", err
	}
	return result.TranslatedText, nil
}

// Ping sends a trivial document to svc and returns the response text.
func Ping(ctx context.Context, svc TranslationService) (string, error) {
	text, err := TranslateFragment(ctx, svc, `{"greeting":"Hello"}`, "es")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

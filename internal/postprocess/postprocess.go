// Package postprocess turns raw model output into JSON the pipeline can use.
//
// Clean removes what a chat model wraps around its answer: reasoning
// blocks, a byte order mark, and prose before or after the JSON value.
// Heal and HealStrict then repair the near-valid JSON that remains, and
// Validate and SameShape decide whether the result is acceptable.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean strips model chatter around a JSON answer and returns the trimmed
// result. Text without any JSON container is returned trimmed but otherwise
// unchanged.
func Clean(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = removeReasoning(text)
	text = trimProse(text)
	return strings.TrimSpace(text)
}

var reasoningTags = []string{"thinking", "think", "reasoning", "reflection"}

// RE2 has no backreferences, so every tag pair is spelled out.
var (
	reasoningBlockRe    = regexp.MustCompile(`(?is)` + alternation("<%s>.*?</%s>"))
	unclosedReasoningRe = regexp.MustCompile(`(?is)^\s*(?:` + alternation("<%s>") + `).*$`)
)

func alternation(format string) string {
	parts := make([]string, len(reasoningTags))
	for i, tag := range reasoningTags {
		parts[i] = strings.ReplaceAll(format, "%s", tag)
	}
	return strings.Join(parts, "|")
}

// removeReasoning drops complete reasoning blocks anywhere and an unclosed
// one that starts the answer (the model ran out of tokens while thinking).
func removeReasoning(text string) string {
	text = reasoningBlockRe.ReplaceAllString(text, "")
	text = unclosedReasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// trimProse cuts a lead-in such as "Here is the translation:" before the
// first container and a sign-off after the last one. Either side is kept
// when it holds a quote, since then it may be part of the JSON itself.
func trimProse(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	if start > 0 && !strings.Contains(text[:start], `"`) {
		text = text[start:]
	}

	end := strings.LastIndexAny(text, "}]")
	if end < 0 {
		return text
	}
	if tail := text[end+1:]; strings.TrimSpace(tail) != "" && !strings.ContainsAny(tail, `"{[`) {
		text = text[:end+1]
	}
	return text
}

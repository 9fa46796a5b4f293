package postprocess

import (
	"strings"

	"github.com/valpere/cvtran/internal/jsonlex"
)

// Heal repairs near-valid JSON returned by a model. It never fails and is
// idempotent. Until the text stops changing, it:
//  1. strips markdown code-fence markers and their info string
//  2. drops commas that precede a closing brace/bracket or the end of input
//  3. trims surrounding whitespace
//
// It then closes an unterminated string and appends the closers of every
// still-open object or array.
//
// The result is not guaranteed to parse; callers must still validate it.
func Heal(text string) string {
	// every step only removes bytes, so the loop terminates
	for {
		next := strings.TrimSpace(dropTrailingCommas(stripFences(text)))
		if next == text {
			break
		}
		text = next
	}
	return closeOpen(text)
}

// HealStrict is Heal preceded by escaping raw control characters found
// inside string literals: tab, newline and carriage return become escape
// sequences and other control characters are dropped. Control characters
// outside strings are left alone.
func HealStrict(text string) string {
	return Heal(escapeControlChars(text))
}

const fence = "```"

// stripFences removes fence markers at the start or end of each line. An
// opening marker also loses its info string ("json", "JSON5") when the
// word is followed by whitespace, an opening container or the line end.
func stripFences(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = stripFenceLine(line)
	}
	return strings.Join(lines, "\n")
}

func stripFenceLine(line string) string {
	for {
		if rest, ok := strings.CutPrefix(strings.TrimLeft(line, " \t"), fence); ok {
			line = dropInfoString(rest)
			continue
		}
		if rest, ok := strings.CutSuffix(strings.TrimRight(line, " \t\r"), fence); ok {
			line = rest
			continue
		}
		return line
	}
}

func dropInfoString(s string) string {
	n := 0
	for n < len(s) && isInfoByte(s[n]) {
		n++
	}
	if n == 0 {
		return s
	}
	if n == len(s) || strings.IndexByte(" \t\r{[", s[n]) >= 0 {
		return s[n:]
	}
	return s
}

func isInfoByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '+' || c == '-'
}

func dropTrailingCommas(text string) string {
	var (
		lx jsonlex.Lexer
		sb strings.Builder
	)
	sb.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ',' && lx.State() == jsonlex.Normal {
			next := nextSignificant(text, i+1)
			if next == '}' || next == ']' || (next == 0 && lx.Depth() > 0) {
				continue
			}
		}
		lx.Step(c)
		sb.WriteByte(c)
	}
	return sb.String()
}

// nextSignificant returns the first byte after from that is neither
// whitespace nor a comma, or 0 at end of input.
func nextSignificant(text string, from int) byte {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case ' ', '\t', '\n', '\r', ',':
			continue
		default:
			return text[j]
		}
	}
	return 0
}

func closeOpen(text string) string {
	var lx jsonlex.Lexer
	lx.Scan(text)

	switch lx.State() {
	case jsonlex.InString:
		text += `"`
	case jsonlex.Escaped:
		text += `\"`
	}
	return text + lx.Closers()
}

var controlEscapes = map[byte]byte{'\t': 't', '\n': 'n', '\r': 'r'}

func escapeControlChars(text string) string {
	var (
		lx jsonlex.Lexer
		sb strings.Builder
	)
	sb.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c < 0x20 && lx.InString() {
			pending := lx.State() == jsonlex.Escaped
			esc, ok := controlEscapes[c]
			switch {
			case ok:
				if !pending {
					sb.WriteByte('\\')
				}
				sb.WriteByte(esc)
			case pending:
				// complete the dangling backslash as an escaped backslash
				sb.WriteByte('\\')
			}
			if pending {
				lx.Step(c)
			}
			continue
		}
		lx.Step(c)
		sb.WriteByte(c)
	}
	return sb.String()
}
